// Package pattern implements the rule engine: per-language regular
// expressions for names, places, weather, objects and motion.
package pattern

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
)

// Native tags.
const (
	TagPerson = "PERSON"
	TagPlace  = "PLACE"
	TagMood   = "MOOD"
	TagThing  = "THING"
	TagEvent  = "EVENT"
)

// Version identifies the built-in rule sets.
const Version = "rules-2.1"

// Word-boundary wrappers. RE2 \b is ASCII-only, so Cyrillic rules need these.
const (
	leftBoundary  = `(?:^|[^\p{L}\p{N}])`
	rightBoundary = `(?:$|[^\p{L}\p{N}])`
)

// Rule is one expression whose first capture group is the reported span.
type Rule struct {
	Name       string
	Tag        string
	Confidence float64
	Expr       *regexp.Regexp
	// Stop rejects captures that are common sentence-initial words.
	Stop map[string]struct{}
}

// bounded compiles body between word boundaries. body must contain exactly one
// capture group for the span.
func bounded(body string) *regexp.Regexp {
	return regexp.MustCompile(leftBoundary + body + rightBoundary)
}

func stopSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// Model holds the compiled rules per language.
type Model struct {
	rules map[string][]Rule
}

// NewModel builds a model from rule sets keyed by language.
func NewModel(sets map[string][]Rule) (*Model, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("pattern: no rule sets")
	}
	for lang, rules := range sets {
		for _, r := range rules {
			if r.Expr == nil || r.Expr.NumSubexp() < 1 {
				return nil, fmt.Errorf("pattern %s/%s: expression needs a capture group", lang, r.Name)
			}
		}
	}
	return &Model{rules: sets}, nil
}

// BuiltinRules returns the shipped rule sets for the requested languages.
func BuiltinRules(languages []string) map[string][]Rule {
	all := map[string][]Rule{
		"en": englishRules,
		"ru": russianRules,
	}
	out := make(map[string][]Rule, len(languages))
	for _, lang := range languages {
		if rules, ok := all[lang]; ok {
			out[lang] = rules
		}
	}
	return out
}

// Detect applies every rule for lang. Matches may overlap between rules.
func (m *Model) Detect(ctx context.Context, text, lang string) ([]engine.Mention, error) {
	rules, ok := m.rules[lang]
	if !ok {
		return nil, nil
	}

	var mentions []engine.Mention
	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mentions = append(mentions, r.find(text)...)
	}

	slices.SortFunc(mentions, func(a, b engine.Mention) int {
		return cmp.Or(
			cmp.Compare(a.Start, b.Start),
			cmp.Compare(b.End, a.End),
			strings.Compare(a.Label, b.Label),
			strings.Compare(a.Metadata["rule"], b.Metadata["rule"]),
		)
	})
	return mentions, nil
}

// find scans text, resuming after each captured span so that the boundary
// character consumed by one match can open the next.
func (r Rule) find(text string) []engine.Mention {
	var out []engine.Mention
	for off := 0; off < len(text); {
		loc := r.Expr.FindStringSubmatchIndex(text[off:])
		if loc == nil || loc[2] < 0 {
			break
		}
		start, end := off+loc[2], off+loc[3]
		if end <= off {
			break
		}
		off = end

		span := text[start:end]
		if _, stop := r.Stop[firstWord(span)]; stop {
			continue
		}
		out = append(out, engine.Mention{
			Start:    start,
			End:      end,
			Label:    r.Tag,
			Score:    r.Confidence,
			Metadata: map[string]string{"rule": r.Name},
		})
	}
	return out
}

func firstWord(s string) string {
	if i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }); i >= 0 {
		return s[:i]
	}
	return s
}

// Health passes once rules are compiled.
func (m *Model) Health(context.Context) error {
	return nil
}

// Close is a no-op.
func (m *Model) Close() error {
	return nil
}
