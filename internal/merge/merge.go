// Package merge reconciles overlapping candidates from several processors into
// canonical, ranked descriptions.
package merge

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/scoring"
)

const (
	defaultOverlapThreshold = 0.6
	defaultContextChars     = 200
	defaultMinVotes         = 1
)

// descriptionNamespace seeds the name-based description IDs.
var descriptionNamespace = uuid.MustParse("6f1c3b0e-5a7d-4e21-9b8c-2d4f6a8e0c13")

// DefaultProcessorPriority breaks category ties. Earlier wins.
func DefaultProcessorPriority() []string {
	return []string{"sidecar", "lexicon", "pattern"}
}

// Config controls grouping and conflict resolution.
type Config struct {
	// OverlapThreshold is the intersection-over-union at which two spans merge. Default: 0.6
	OverlapThreshold float64 `yaml:"overlap_threshold"`
	// ProcessorPriority orders processors for tie-breaks. Unlisted processors rank last, by name.
	ProcessorPriority []string `yaml:"processor_priority"`
	// ContextChars is how far, in bytes, the context window may reach past the span. Default: 200
	ContextChars int `yaml:"context_chars"`
	// MinVotes is the voting-mode quorum of agreeing processors. Default: 1
	MinVotes int `yaml:"min_votes"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.OverlapThreshold == 0 {
		c.OverlapThreshold = defaultOverlapThreshold
	}
	if len(c.ProcessorPriority) == 0 {
		c.ProcessorPriority = DefaultProcessorPriority()
	}
	if c.ContextChars == 0 {
		c.ContextChars = defaultContextChars
	}
	if c.MinVotes == 0 {
		c.MinVotes = defaultMinVotes
	}
}

// Options are the per-job merge settings.
type Options struct {
	// Voting selects majority-vote resolution and the agreement boost.
	Voting        bool
	MinConfidence float64
	// Language drives title-casing of entity names.
	Language language.Tag
}

// Merger turns raw candidates into descriptions. It is safe for concurrent use.
type Merger struct {
	cfg    Config
	scorer *scoring.Engine
	rank   map[string]int
}

// New creates a Merger.
func New(cfg Config, scorer *scoring.Engine) *Merger {
	cfg.SetDefaults()
	rank := make(map[string]int, len(cfg.ProcessorPriority))
	for i, p := range cfg.ProcessorPriority {
		if _, seen := rank[p]; !seen {
			rank[p] = i
		}
	}
	return &Merger{cfg: cfg, scorer: scorer, rank: rank}
}

// group is a set of overlapping candidates and their bounding span.
type group struct {
	start, end int
	members    []domain.RawCandidate
}

// resolved is a group after category and span resolution.
type resolved struct {
	category     domain.Category
	start, end   int
	processors   []string
	confidences  []float64
	contextStart int
	contextEnd   int
	context      string
}

// Merge groups, resolves, scores and ranks candidates found in text. The
// result never depends on the order of candidates.
func (m *Merger) Merge(text string, candidates []domain.RawCandidate, opts Options) []domain.Description {
	valid := m.sanitize(text, candidates)
	if len(valid) == 0 {
		return []domain.Description{}
	}

	slices.SortFunc(valid, m.compareCandidates)
	groups := m.sweep(valid)

	items := make([]resolved, 0, len(groups))
	for i := range groups {
		r, ok := m.resolve(text, &groups[i], opts.Voting)
		if !ok {
			continue
		}
		items = append(items, r)
	}

	caser := cases.Title(opts.Language)
	textHash := hashText(text)
	out := make([]domain.Description, 0, len(items))
	for _, r := range items {
		entities := m.entitiesWithin(text, items, r.contextStart, r.contextEnd, caser)
		spanText := text[r.start:r.end]
		score := m.scorer.Score(scoring.Input{
			Category:    r.category,
			Text:        spanText,
			Confidences: r.confidences,
			Voting:      opts.Voting,
		}, scoring.ChapterContext{
			Position:    position(r.start, len(text)),
			EntityCount: len(entities),
		})
		if score.Confidence < opts.MinConfidence {
			continue
		}
		out = append(out, domain.Description{
			ID:                     descriptionID(textHash, r.start, r.end, r.category),
			Category:               r.category,
			Text:                   spanText,
			ContextWindow:          r.context,
			ConfidenceScore:        score.Confidence,
			PriorityScore:          score.Priority,
			ContributingProcessors: r.processors,
			PositionInChapter:      position(r.start, len(text)),
			SpanStart:              r.start,
			SpanEnd:                r.end,
			EntitiesMentioned:      entities,
			SuitableForGeneration:  score.Suitable,
		})
	}

	return m.Remerge(text, out, opts)
}

// Remerge folds together descriptions that still overlap beyond the
// threshold and returns the set in rank order. On the output of Merge it
// changes nothing.
func (m *Merger) Remerge(text string, descs []domain.Description, opts Options) []domain.Description {
	out := domain.CloneDescriptions(descs)
	if out == nil {
		out = []domain.Description{}
	}

	var textHash string
	for {
		slices.SortFunc(out, compareBySpan)
		i, j, found := m.firstOverlap(out)
		if !found {
			break
		}
		if textHash == "" {
			textHash = hashText(text)
		}
		combined := m.combine(text, textHash, out[i], out[j])
		out[i] = combined
		out = slices.Delete(out, j, j+1)
	}

	slices.SortFunc(out, compareByRank)
	return out
}

// Overlapping reports whether two spans are close enough to be merged.
func (m *Merger) Overlapping(aStart, aEnd, bStart, bEnd int) bool {
	if aStart >= aEnd || bStart >= bEnd {
		return false
	}
	if (aStart <= bStart && bEnd <= aEnd) || (bStart <= aStart && aEnd <= bEnd) {
		return true
	}
	inter := min(aEnd, bEnd) - max(aStart, bStart)
	if inter <= 0 {
		return false
	}
	union := max(aEnd, bEnd) - min(aStart, bStart)
	return float64(inter)/float64(union) >= m.cfg.OverlapThreshold
}

// sanitize drops candidates with spans outside text, off rune boundaries or
// with unknown categories, and rewrites Text from the span.
func (m *Merger) sanitize(text string, candidates []domain.RawCandidate) []domain.RawCandidate {
	out := make([]domain.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.SpanStart < 0 || c.SpanEnd > len(text) || c.SpanStart >= c.SpanEnd {
			continue
		}
		if !utf8.RuneStart(text[c.SpanStart]) || (c.SpanEnd < len(text) && !utf8.RuneStart(text[c.SpanEnd])) {
			continue
		}
		if !c.Category.Valid() {
			continue
		}
		c.Text = text[c.SpanStart:c.SpanEnd]
		out = append(out, c)
	}
	return out
}

func (m *Merger) sweep(sorted []domain.RawCandidate) []group {
	var groups []group
	for _, c := range sorted {
		if n := len(groups); n > 0 {
			g := &groups[n-1]
			if m.Overlapping(g.start, g.end, c.SpanStart, c.SpanEnd) {
				g.members = append(g.members, c)
				g.end = max(g.end, c.SpanEnd)
				continue
			}
		}
		groups = append(groups, group{start: c.SpanStart, end: c.SpanEnd, members: []domain.RawCandidate{c}})
	}
	return groups
}

// resolve picks the category, canonical span and agreeing confidences of a group.
func (m *Merger) resolve(text string, g *group, voting bool) (resolved, bool) {
	votes := m.votes(g.members)
	processors := make([]string, 0, len(votes))
	for p := range votes {
		processors = append(processors, p)
	}
	slices.SortFunc(processors, m.compareProcessors)

	category := m.chooseCategory(votes, processors, voting)

	var confidences []float64
	for _, p := range processors {
		if voting && votes[p].Category != category {
			continue
		}
		confidences = append(confidences, bestConfidence(g.members, p, category, voting))
	}
	if voting && len(confidences) < m.cfg.MinVotes {
		return resolved{}, false
	}

	start, end := m.canonicalSpan(g)
	if utf8.RuneCountInString(text[start:end]) < m.scorer.MinLength(category) {
		return resolved{}, false
	}

	window, ws, we := contextWindow(text, start, end, m.cfg.ContextChars)
	return resolved{
		category:     category,
		start:        start,
		end:          end,
		processors:   processors,
		confidences:  confidences,
		contextStart: ws,
		contextEnd:   we,
		context:      window,
	}, true
}

// votes keeps each processor's strongest candidate in the group.
func (m *Merger) votes(members []domain.RawCandidate) map[string]domain.RawCandidate {
	votes := make(map[string]domain.RawCandidate, len(members))
	for _, c := range members {
		cur, ok := votes[c.ProcessorID]
		if !ok || strongerVote(c, cur) {
			votes[c.ProcessorID] = c
		}
	}
	return votes
}

func strongerVote(a, b domain.RawCandidate) bool {
	if a.EngineConfidence != b.EngineConfidence {
		return a.EngineConfidence > b.EngineConfidence
	}
	if a.Len() != b.Len() {
		return a.Len() > b.Len()
	}
	if a.SpanStart != b.SpanStart {
		return a.SpanStart < b.SpanStart
	}
	return a.Category < b.Category
}

// chooseCategory applies majority vote in voting mode; otherwise, and for
// ties, the highest-priority processor decides.
func (m *Merger) chooseCategory(votes map[string]domain.RawCandidate, ordered []string, voting bool) domain.Category {
	if !voting {
		return votes[ordered[0]].Category
	}
	counts := make(map[domain.Category]int, len(domain.AllCategories))
	top := 0
	for _, p := range ordered {
		counts[votes[p].Category]++
		top = max(top, counts[votes[p].Category])
	}
	for _, p := range ordered {
		if cat := votes[p].Category; counts[cat] == top {
			return cat
		}
	}
	return votes[ordered[0]].Category
}

func bestConfidence(members []domain.RawCandidate, processor string, category domain.Category, voting bool) float64 {
	best := 0.0
	for _, c := range members {
		if c.ProcessorID != processor || (voting && c.Category != category) {
			continue
		}
		best = max(best, c.EngineConfidence)
	}
	return best
}

// canonicalSpan is the span at least two processors reported verbatim, or
// else the bounding span of the group.
func (m *Merger) canonicalSpan(g *group) (int, int) {
	type span struct{ start, end int }
	agree := make(map[span]map[string]struct{})
	for _, c := range g.members {
		s := span{c.SpanStart, c.SpanEnd}
		if agree[s] == nil {
			agree[s] = make(map[string]struct{})
		}
		agree[s][c.ProcessorID] = struct{}{}
	}

	best, bestCount := span{}, 0
	for s, procs := range agree {
		n := len(procs)
		switch {
		case n > bestCount,
			n == bestCount && s.end-s.start > best.end-best.start,
			n == bestCount && s.end-s.start == best.end-best.start && s.start < best.start:
			best, bestCount = s, n
		}
	}
	if bestCount >= 2 {
		return best.start, best.end
	}
	return g.start, g.end
}

// entitiesWithin lists the character names whose spans fall inside [ws, we).
func (m *Merger) entitiesWithin(text string, items []resolved, ws, we int, caser cases.Caser) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, it := range items {
		if it.category != domain.CategoryCharacter || it.start < ws || it.end > we {
			continue
		}
		name := caser.String(strings.ToLower(strings.Join(strings.Fields(text[it.start:it.end]), " ")))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *Merger) firstOverlap(sorted []domain.Description) (int, int, bool) {
	for i := range sorted {
		for j := i + 1; j < len(sorted) && sorted[j].SpanStart < sorted[i].SpanEnd; j++ {
			if m.Overlapping(sorted[i].SpanStart, sorted[i].SpanEnd, sorted[j].SpanStart, sorted[j].SpanEnd) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// combine folds b into a. The stronger description keeps its category.
func (m *Merger) combine(text, textHash string, a, b domain.Description) domain.Description {
	keep := a
	if b.ConfidenceScore > a.ConfidenceScore {
		keep = b
	}
	start, end := min(a.SpanStart, b.SpanStart), max(a.SpanEnd, b.SpanEnd)
	confidence := max(a.ConfidenceScore, b.ConfidenceScore)

	processors := append(slices.Clone(a.ContributingProcessors), b.ContributingProcessors...)
	slices.SortFunc(processors, m.compareProcessors)
	processors = slices.Compact(processors)

	entities := append(slices.Clone(a.EntitiesMentioned), b.EntitiesMentioned...)
	slices.Sort(entities)
	entities = slices.Compact(entities)

	window, _, _ := contextWindow(text, start, end, m.cfg.ContextChars)
	spanText := text[start:end]
	return domain.Description{
		ID:                     descriptionID(textHash, start, end, keep.Category),
		Category:               keep.Category,
		Text:                   spanText,
		ContextWindow:          window,
		ConfidenceScore:        confidence,
		PriorityScore:          m.scorer.Priority(keep.Category, confidence, position(start, len(text))),
		ContributingProcessors: processors,
		PositionInChapter:      position(start, len(text)),
		SpanStart:              start,
		SpanEnd:                end,
		EntitiesMentioned:      entities,
		SuitableForGeneration:  m.scorer.Suitable(keep.Category, spanText, confidence),
	}
}

func (m *Merger) processorRank(p string) int {
	if r, ok := m.rank[p]; ok {
		return r
	}
	return len(m.rank)
}

func (m *Merger) compareProcessors(a, b string) int {
	return cmp.Or(cmp.Compare(m.processorRank(a), m.processorRank(b)), strings.Compare(a, b))
}

// compareCandidates orders by start, longer first, processor priority,
// category, text, then confidence.
func (m *Merger) compareCandidates(a, b domain.RawCandidate) int {
	return cmp.Or(
		cmp.Compare(a.SpanStart, b.SpanStart),
		cmp.Compare(b.SpanEnd, a.SpanEnd),
		m.compareProcessors(a.ProcessorID, b.ProcessorID),
		cmp.Compare(a.Category, b.Category),
		strings.Compare(a.Text, b.Text),
		cmp.Compare(b.EngineConfidence, a.EngineConfidence),
	)
}

func compareBySpan(a, b domain.Description) int {
	return cmp.Or(
		cmp.Compare(a.SpanStart, b.SpanStart),
		cmp.Compare(b.SpanEnd, a.SpanEnd),
		cmp.Compare(a.Category, b.Category),
		strings.Compare(a.ID, b.ID),
	)
}

// compareByRank puts the most valuable descriptions first.
func compareByRank(a, b domain.Description) int {
	return cmp.Or(
		cmp.Compare(b.PriorityScore, a.PriorityScore),
		cmp.Compare(b.ConfidenceScore, a.ConfidenceScore),
		cmp.Compare(a.SpanStart, b.SpanStart),
		cmp.Compare(a.SpanEnd, b.SpanEnd),
		cmp.Compare(a.Category, b.Category),
	)
}

func position(start, length int) float64 {
	if length == 0 {
		return 0
	}
	return float64(start) / float64(length)
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func descriptionID(textHash string, start, end int, category domain.Category) string {
	name := fmt.Sprintf("%s:%d:%d:%s", textHash, start, end, category)
	return uuid.NewSHA1(descriptionNamespace, []byte(name)).String()
}
