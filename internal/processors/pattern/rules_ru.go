package pattern

var russianStopWords = stopSet(
	"Он", "Она", "Оно", "Они", "Мы", "Я", "Ты", "Вы", "Это", "Там", "Тут", "Когда",
	"Но", "И", "А", "Над", "Под", "Вдруг", "Никто", "Кто", "Все", "Всё", "Потом", "Затем",
)

var russianRules = []Rule{
	{
		Name:       "ru.honorific",
		Tag:        TagPerson,
		Confidence: confHonorific,
		Expr: bounded(`((?i:господин|госпожа|граф|графиня|князь|княгиня|капитан|барон|баронесса|` +
			`доктор|сэр|леди|отец|брат|сестра)\s+\p{Lu}\p{Ll}+)`),
	},
	{
		Name:       "ru.named_actor",
		Tag:        TagPerson,
		Confidence: confNamedActor,
		Expr: bounded(`(\p{Lu}\p{Ll}+)\s+(?:шёл|шел|шла|стоял|стояла|сказал|сказала|побежал|побежала|` +
			`вошёл|вошел|вошла|посмотрел|посмотрела|улыбнулся|улыбнулась|ответил|ответила|` +
			`прошептал|прошептала|обернулся|обернулась|сидел|сидела)`),
		Stop: russianStopWords,
	},
	{
		Name:       "ru.place",
		Tag:        TagPlace,
		Confidence: confPlace,
		Expr: bounded(`(?i:в|во|на|над|под|у|за|возле|около|через|среди)\s+((?:\p{L}+\s+){0,2}` +
			`(?i:замке|замок|замка|лесу|лес|леса|холме|холмах|холмами|горах|деревне|городе|башне|` +
			`реке|озере|поле|пещере|долине|долиной|саду|площади|мосту))`),
	},
	{
		Name:       "ru.weather",
		Tag:        TagMood,
		Confidence: confWeather,
		Expr: bounded(`((?i:густой|густом|густым|холодный|холодном|холодным|тёмный|темный|серый|сером|` +
			`лёгкий|легкий|бледный|мрачный|тихий|ледяной|ледяном)\s+(?i:туман|тумане|туманом|дождь|` +
			`дожде|ветер|ветре|снег|свет|сумрак|мрак))`),
	},
	{
		Name:       "ru.mood_noun",
		Tag:        TagMood,
		Confidence: confMoodNoun,
		Expr: bounded(`(?i:в|во|под|сквозь)\s+((?i:тумане|туман|дожде|дождём|дождем|сумерках|` +
			`темноте|тишине|полумраке|мраке))`),
	},
	{
		Name:       "ru.thing",
		Tag:        TagThing,
		Confidence: confThing,
		Expr: bounded(`(?i:свой|свою|своё|свое|своим|его|её|ее|их|мой|мою)\s+((?:\p{L}+\s+)?` +
			`(?i:меч|меча|мечом|кинжал|щит|фонарь|книгу|книга|письмо|ключ|кольцо|плащ|карту|посох|факел))`),
	},
	{
		Name:       "ru.motion",
		Tag:        TagEvent,
		Confidence: confMotion,
		Expr: bounded(`((?i:медленно|тихо|быстро|осторожно|неспешно)\s+(?i:шёл|шел|шла|шагал|шагала|` +
			`ехал|ехала|брёл|брел|брела|пошёл|пошел|пошла|побежал|побежала|вошёл|вошел|вошла))`),
	},
}
