package pattern

// Rule confidences. Named people are the most reliable signal; loose
// adjective + noun constructions the least.
const (
	confHonorific  = 0.8
	confNamedActor = 0.7
	confPlace      = 0.65
	confWeather    = 0.6
	confMoodNoun   = 0.5
	confThing      = 0.55
	confMotion     = 0.5
)

var englishStopWords = stopSet(
	"The", "A", "An", "He", "She", "It", "They", "We", "I", "You", "His", "Her",
	"Their", "Then", "But", "And", "When", "There", "Here", "Suddenly", "Everyone",
	"Nobody", "Someone", "This", "That", "Nothing", "Something", "Now", "Soon",
)

var englishRules = []Rule{
	{
		Name:       "en.honorific",
		Tag:        TagPerson,
		Confidence: confHonorific,
		Expr: bounded(`((?:Sir|Lady|Lord|Mr\.|Mrs\.|Ms\.|Dr\.|Captain|King|Queen|Prince|Princess|` +
			`Father|Brother|Sister|Master)\s+\p{Lu}\p{Ll}+)`),
	},
	{
		Name:       "en.named_actor",
		Tag:        TagPerson,
		Confidence: confNamedActor,
		Expr: bounded(`(\p{Lu}\p{Ll}+)\s+(?:walked|ran|rode|said|whispered|shouted|stood|sat|smiled|` +
			`laughed|turned|looked|stared|crept|strode|knelt|paused|waited|drew|raised|answered|asked|cried)`),
		Stop: englishStopWords,
	},
	{
		Name:       "en.place",
		Tag:        TagPlace,
		Confidence: confPlace,
		Expr: bounded(`(?i:in|into|over|across|through|toward|towards|near|beside|under|beyond|along|` +
			`above|behind|inside|within)\s+(?:(?i:the)\s+)?((?:\p{L}+\s+){0,2}(?i:hills?|forest|woods|` +
			`valley|river|mountains?|castle|village|city|tower|lake|sea|shore|field|meadow|road|cave|` +
			`ruins|hall|chamber|bridge|courtyard|harbou?r|marsh|desert|garden|cathedral))`),
	},
	{
		Name:       "en.weather",
		Tag:        TagMood,
		Confidence: confWeather,
		Expr: bounded(`((?i:thick|heavy|cold|grey|gray|pale|dim|eerie|bright|golden|silver|dark|misty|` +
			`gentle|bitter|low|faint)\s+(?i:fog|mist|rain|wind|snow|light|moonlight|sunlight|twilight|` +
			`darkness|silence|gloom|shadows?|storm|haze))`),
	},
	{
		Name:       "en.thing",
		Tag:        TagThing,
		Confidence: confThing,
		Expr: bounded(`(?i:his|her|their|a|an|the|my|its|your)\s+((?:(?i:old|rusty|broken|silver|golden|` +
			`ancient|heavy|small|wooden|iron|leather|worn|sharp)\s+)?(?i:sword|dagger|shield|lantern|` +
			`book|letter|key|ring|cloak|map|bow|staff|amulet|chest|candle|helm|crown|torch))`),
	},
	{
		Name:       "en.motion",
		Tag:        TagEvent,
		Confidence: confMotion,
		Expr: bounded(`((?i:walked|ran|crept|rode|strode|stumbled|wandered|marched|hurried|drifted|` +
			`climbed|galloped)\s+(?i:slowly|quickly|silently|quietly|carefully|briskly|away|forward|` +
			`home|steadily|softly))`),
	},
}
