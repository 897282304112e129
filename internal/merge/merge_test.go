package merge_test

import (
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/merge"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/scoring"
)

const castleChapter = "Old stone castle loomed over misty hills. John walked slowly toward it."

func newMerger(cfg merge.Config) *merge.Merger {
	return merge.New(cfg, scoring.New(scoring.Config{}))
}

func candidate(text, processor, span string, cat domain.Category, conf float64) domain.RawCandidate {
	start := strings.Index(text, span)
	if start < 0 {
		panic("span not in text: " + span)
	}
	return domain.RawCandidate{
		ProcessorID:      processor,
		SpanStart:        start,
		SpanEnd:          start + len(span),
		Text:             span,
		Category:         cat,
		EngineConfidence: conf,
	}
}

func castleCandidates() []domain.RawCandidate {
	return []domain.RawCandidate{
		candidate(castleChapter, "lexicon", "Old stone castle", domain.CategoryLocation, 0.8),
		candidate(castleChapter, "pattern", "Old stone castle", domain.CategoryLocation, 0.7),
		candidate(castleChapter, "sidecar", "John", domain.CategoryCharacter, 0.9),
	}
}

func ensembleOpts() merge.Options {
	return merge.Options{Voting: true, Language: language.English}
}

func TestMerge_CastleScenario(t *testing.T) {
	m := newMerger(merge.Config{})

	got := m.Merge(castleChapter, castleCandidates(), ensembleOpts())
	require.Len(t, got, 2)

	var location, character domain.Description
	for _, d := range got {
		switch d.Category {
		case domain.CategoryLocation:
			location = d
		case domain.CategoryCharacter:
			character = d
		}
	}

	assert.Equal(t, "Old stone castle", location.Text)
	assert.Greater(t, location.ConfidenceScore, 0.8)
	assert.Equal(t, []string{"lexicon", "pattern"}, location.ContributingProcessors)
	assert.Equal(t, []string{"John"}, location.EntitiesMentioned)
	assert.Contains(t, location.ContextWindow, "Old stone castle loomed over misty hills.")

	assert.Equal(t, "John", character.Text)
	assert.InDelta(t, 0.9, character.ConfidenceScore, 0.05)

	actionPriority := scoring.New(scoring.Config{}).Priority(domain.CategoryAction, 1, 0)
	assert.Greater(t, location.PriorityScore, actionPriority)
	assert.Equal(t, location.ID, got[0].ID, "location should rank first")
}

func TestMerge_PartialScoringConfigKeepsShortNames(t *testing.T) {
	scorer := scoring.New(scoring.Config{
		CategoryWeights:   map[domain.Category]float64{domain.CategoryLocation: 0.9},
		CategoryMinLength: map[domain.Category]int{domain.CategoryLocation: 12},
	})
	m := merge.New(merge.Config{}, scorer)

	got := m.Merge(castleChapter, castleCandidates(), ensembleOpts())
	texts := make([]string, 0, len(got))
	for _, d := range got {
		texts = append(texts, d.Text)
	}
	assert.ElementsMatch(t, []string{"Old stone castle", "John"}, texts)
}

func TestMerge_Idempotent(t *testing.T) {
	m := newMerger(merge.Config{})
	text := "The tavern by the harbour was loud. Captain Mara drank alone in the tavern by the harbour. " +
		"A cold grey fog rolled in from the sea."
	candidates := []domain.RawCandidate{
		candidate(text, "lexicon", "tavern by the harbour", domain.CategoryLocation, 0.7),
		candidate(text, "pattern", "The tavern by the harbour", domain.CategoryLocation, 0.6),
		candidate(text, "sidecar", "tavern", domain.CategoryObject, 0.5),
		candidate(text, "pattern", "Captain Mara", domain.CategoryCharacter, 0.8),
		candidate(text, "sidecar", "Mara", domain.CategoryCharacter, 0.9),
		candidate(text, "lexicon", "A cold grey fog", domain.CategoryAtmosphere, 0.65),
		candidate(text, "pattern", "cold grey fog rolled in", domain.CategoryAtmosphere, 0.55),
	}

	for _, voting := range []bool{true, false} {
		opts := merge.Options{Voting: voting, Language: language.English}
		once := m.Merge(text, candidates, opts)
		twice := m.Remerge(text, once, opts)
		assert.Equal(t, once, twice, "voting=%v", voting)
	}
}

func TestMerge_OrderIndependent(t *testing.T) {
	m := newMerger(merge.Config{})
	candidates := castleCandidates()
	candidates = append(candidates,
		candidate(castleChapter, "sidecar", "misty hills", domain.CategoryLocation, 0.6),
		candidate(castleChapter, "lexicon", "misty", domain.CategoryAtmosphere, 0.4),
	)

	want := m.Merge(castleChapter, candidates, ensembleOpts())
	rng := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		shuffled := slices.Clone(candidates)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, m.Merge(castleChapter, shuffled, ensembleOpts()))
	}
}

func TestMerge_NoOverlapAndContainment(t *testing.T) {
	m := newMerger(merge.Config{})
	text := "Beneath the crumbling old watchtower the soldiers waited in the freezing rain for dawn."
	candidates := []domain.RawCandidate{
		candidate(text, "lexicon", "crumbling old watchtower", domain.CategoryLocation, 0.7),
		candidate(text, "pattern", "the crumbling old watchtower the soldiers", domain.CategoryLocation, 0.5),
		candidate(text, "sidecar", "old watchtower", domain.CategoryLocation, 0.8),
		candidate(text, "pattern", "freezing rain", domain.CategoryAtmosphere, 0.6),
		candidate(text, "lexicon", "in the freezing rain for dawn", domain.CategoryAtmosphere, 0.5),
		{ProcessorID: "broken", SpanStart: 70, SpanEnd: 500, Category: domain.CategoryObject, EngineConfidence: 1},
		{ProcessorID: "broken", SpanStart: 5, SpanEnd: 5, Category: domain.CategoryObject, EngineConfidence: 1},
		{ProcessorID: "broken", SpanStart: 0, SpanEnd: 20, Category: "weather", EngineConfidence: 1},
	}

	got := m.Merge(text, candidates, merge.Options{Language: language.English})
	require.NotEmpty(t, got)

	for i, a := range got {
		assert.GreaterOrEqual(t, a.SpanStart, 0)
		assert.Less(t, a.SpanStart, a.SpanEnd)
		assert.LessOrEqual(t, a.SpanEnd, len(text))
		assert.Equal(t, text[a.SpanStart:a.SpanEnd], a.Text)
		for _, b := range got[i+1:] {
			assert.False(t, m.Overlapping(a.SpanStart, a.SpanEnd, b.SpanStart, b.SpanEnd),
				"%q overlaps %q", a.Text, b.Text)
		}
	}
}

func TestMerge_CanonicalSpan(t *testing.T) {
	m := newMerger(merge.Config{})
	text := "They reached the ancient stone bridge at dusk."

	t.Run("verbatim agreement wins", func(t *testing.T) {
		got := m.Merge(text, []domain.RawCandidate{
			candidate(text, "lexicon", "ancient stone bridge", domain.CategoryLocation, 0.7),
			candidate(text, "pattern", "ancient stone bridge", domain.CategoryLocation, 0.6),
			candidate(text, "sidecar", "the ancient stone bridge", domain.CategoryLocation, 0.9),
		}, ensembleOpts())
		require.Len(t, got, 1)
		assert.Equal(t, "ancient stone bridge", got[0].Text)
		assert.Len(t, got[0].ContributingProcessors, 3)
	})

	t.Run("otherwise bounding span", func(t *testing.T) {
		got := m.Merge(text, []domain.RawCandidate{
			candidate(text, "lexicon", "ancient stone bridge at", domain.CategoryLocation, 0.7),
			candidate(text, "sidecar", "the ancient stone bridge", domain.CategoryLocation, 0.9),
		}, ensembleOpts())
		require.Len(t, got, 1)
		assert.Equal(t, "the ancient stone bridge at", got[0].Text)
	})
}

func TestMerge_CategoryVote(t *testing.T) {
	text := "She opened the silver music box on the table."
	span := "silver music box"

	testCases := []struct {
		name       string
		cfg        merge.Config
		voting     bool
		candidates []domain.RawCandidate
		want       domain.Category
	}{
		{
			name:   "majority wins",
			voting: true,
			candidates: []domain.RawCandidate{
				candidate(text, "sidecar", span, domain.CategoryAtmosphere, 0.9),
				candidate(text, "lexicon", span, domain.CategoryObject, 0.6),
				candidate(text, "pattern", span, domain.CategoryObject, 0.6),
			},
			want: domain.CategoryObject,
		},
		{
			name:   "tie broken by processor priority",
			voting: true,
			candidates: []domain.RawCandidate{
				candidate(text, "pattern", span, domain.CategoryObject, 0.9),
				candidate(text, "lexicon", span, domain.CategoryAtmosphere, 0.5),
			},
			want: domain.CategoryAtmosphere,
		},
		{
			name:   "custom priority order",
			cfg:    merge.Config{ProcessorPriority: []string{"pattern", "lexicon"}},
			voting: true,
			candidates: []domain.RawCandidate{
				candidate(text, "pattern", span, domain.CategoryObject, 0.9),
				candidate(text, "lexicon", span, domain.CategoryAtmosphere, 0.5),
			},
			want: domain.CategoryObject,
		},
		{
			name:   "union mode takes top processor",
			voting: false,
			candidates: []domain.RawCandidate{
				candidate(text, "sidecar", span, domain.CategoryAtmosphere, 0.9),
				candidate(text, "lexicon", span, domain.CategoryObject, 0.6),
				candidate(text, "pattern", span, domain.CategoryObject, 0.6),
			},
			want: domain.CategoryAtmosphere,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMerger(tc.cfg)
			got := m.Merge(text, tc.candidates, merge.Options{Voting: tc.voting, Language: language.English})
			require.Len(t, got, 1)
			assert.Equal(t, tc.want, got[0].Category)
		})
	}
}

func TestMerge_Filters(t *testing.T) {
	text := "A small boy stood near the old lighthouse keeper's cottage."

	t.Run("min confidence", func(t *testing.T) {
		m := newMerger(merge.Config{})
		got := m.Merge(text, []domain.RawCandidate{
			candidate(text, "lexicon", "old lighthouse keeper's cottage", domain.CategoryLocation, 0.4),
			candidate(text, "pattern", "A small boy", domain.CategoryCharacter, 0.9),
		}, merge.Options{Voting: true, MinConfidence: 0.5, Language: language.English})
		require.Len(t, got, 1)
		assert.Equal(t, "A small boy", got[0].Text)
	})

	t.Run("minimum length", func(t *testing.T) {
		m := newMerger(merge.Config{})
		got := m.Merge(text, []domain.RawCandidate{
			candidate(text, "lexicon", "cottage", domain.CategoryLocation, 0.9),
		}, ensembleOpts())
		assert.Empty(t, got)
	})

	t.Run("quorum", func(t *testing.T) {
		m := newMerger(merge.Config{MinVotes: 2})
		got := m.Merge(text, []domain.RawCandidate{
			candidate(text, "lexicon", "old lighthouse keeper's cottage", domain.CategoryLocation, 0.9),
		}, ensembleOpts())
		assert.Empty(t, got)
	})
}

func TestMerge_EmptyInput(t *testing.T) {
	m := newMerger(merge.Config{})
	got := m.Merge("", nil, ensembleOpts())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMerge_Deterministic(t *testing.T) {
	m := newMerger(merge.Config{})
	first := m.Merge(castleChapter, castleCandidates(), ensembleOpts())
	second := m.Merge(castleChapter, castleCandidates(), ensembleOpts())
	assert.Equal(t, first, second)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestMerge_CyrillicEntities(t *testing.T) {
	m := newMerger(merge.Config{})
	text := "Старый замок стоял на холме. Иван медленно шёл к нему."
	got := m.Merge(text, []domain.RawCandidate{
		candidate(text, "lexicon", "Старый замок", domain.CategoryLocation, 0.8),
		candidate(text, "sidecar", "Иван", domain.CategoryCharacter, 0.9),
	}, merge.Options{Voting: true, Language: language.Russian})
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Иван"}, got[0].EntitiesMentioned)
}
