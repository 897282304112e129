// Package lexicon implements the gazetteer engine: per-language term lists
// matched with an Aho-Corasick automaton, then located in the text with word
// boundaries and widened over descriptive modifiers ("old stone castle").
package lexicon

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors"
)

// Native tags.
const (
	TagLocation  = "LOC"
	TagPerson    = "PER"
	TagMood      = "MOOD"
	TagObject    = "OBJ"
	TagAction    = "ACT"
	maxScore     = 0.95
	maxModifiers = 3
)

// File is the on-disk lexicon for one language.
type File struct {
	Language      string     `yaml:"language"`
	Version       string     `yaml:"version"`
	ModifierBonus float64    `yaml:"modifier_bonus"`
	Modifiers     []string   `yaml:"modifiers"`
	Categories    []TermList `yaml:"categories"`
}

// TermList is the terms of one native tag.
type TermList struct {
	Tag        string   `yaml:"tag"`
	Confidence float64  `yaml:"confidence"`
	Terms      []string `yaml:"terms"`
}

type tagScore struct {
	tag   string
	score float64
}

type entry struct {
	folded string
	tags   []tagScore
}

// compiled is the automaton for one language.
type compiled struct {
	matcher       *ahocorasick.Matcher
	entries       []entry
	modifiers     map[string]struct{}
	modifierBonus float64
}

func compile(f *File) (*compiled, error) {
	byTerm := make(map[string]int)
	var entries []entry
	for _, list := range f.Categories {
		if list.Tag == "" {
			return nil, fmt.Errorf("lexicon %s: category without tag", f.Language)
		}
		for _, term := range list.Terms {
			folded := processors.FoldString(strings.Join(strings.Fields(term), " "))
			if folded == "" {
				continue
			}
			idx, ok := byTerm[folded]
			if !ok {
				idx = len(entries)
				byTerm[folded] = idx
				entries = append(entries, entry{folded: folded})
			}
			entries[idx].tags = append(entries[idx].tags, tagScore{tag: list.Tag, score: list.Confidence})
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("lexicon %s: no terms", f.Language)
	}

	dictionary := make([]string, len(entries))
	for i, e := range entries {
		dictionary[i] = e.folded
	}

	modifiers := make(map[string]struct{}, len(f.Modifiers))
	for _, m := range f.Modifiers {
		modifiers[processors.FoldString(strings.TrimSpace(m))] = struct{}{}
	}

	return &compiled{
		matcher:       ahocorasick.NewStringMatcher(dictionary),
		entries:       entries,
		modifiers:     modifiers,
		modifierBonus: f.ModifierBonus,
	}, nil
}

// Model is the loaded gazetteer for every configured language.
type Model struct {
	langs map[string]*compiled
}

// NewModel compiles a bundle into a ready model.
func NewModel(b *Bundle) (*Model, error) {
	m := &Model{langs: make(map[string]*compiled, len(b.Files))}
	for lang, f := range b.Files {
		c, err := compile(f)
		if err != nil {
			return nil, err
		}
		m.langs[lang] = c
	}
	return m, nil
}

// Detect finds every lexicon term in text. Languages without a lexicon yield nothing.
func (m *Model) Detect(ctx context.Context, text, lang string) ([]engine.Mention, error) {
	c, ok := m.langs[lang]
	if !ok {
		return nil, nil
	}

	folded := processors.Fold(text)
	hits := c.matcher.MatchThreadSafe(folded)
	slices.Sort(hits)

	var mentions []engine.Mention
	for _, idx := range hits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(c.entries) {
			continue
		}
		e := c.entries[idx]
		needle := []byte(e.folded)
		for off := 0; off < len(folded); {
			i := bytes.Index(folded[off:], needle)
			if i < 0 {
				break
			}
			start := off + i
			end := start + len(needle)
			_, size := utf8.DecodeRune(folded[start:])
			off = start + size
			if !processors.AtWordBoundary(folded, start, end) {
				continue
			}

			spanStart, n := c.expandLeft(folded, start)
			for _, ts := range e.tags {
				mentions = append(mentions, engine.Mention{
					Start: spanStart,
					End:   end,
					Label: ts.tag,
					Score: min(maxScore, ts.score+c.modifierBonus*float64(n)),
					Metadata: map[string]string{
						"term":      e.folded,
						"modifiers": strconv.Itoa(n),
					},
				})
			}
		}
	}
	return dropContained(mentions), nil
}

// expandLeft widens a match over up to maxModifiers preceding modifier words.
func (c *compiled) expandLeft(folded []byte, start int) (int, int) {
	n := 0
	for n < maxModifiers {
		ws, we, ok := processors.PreviousWord(folded, start)
		if !ok {
			break
		}
		if _, isModifier := c.modifiers[string(folded[ws:we])]; !isModifier {
			break
		}
		start = ws
		n++
	}
	return start, n
}

// dropContained removes mentions nested inside a longer mention of the same tag.
func dropContained(mentions []engine.Mention) []engine.Mention {
	slices.SortFunc(mentions, func(a, b engine.Mention) int {
		return cmp.Or(
			cmp.Compare(a.Start, b.Start),
			cmp.Compare(b.End, a.End),
			strings.Compare(a.Label, b.Label),
			cmp.Compare(b.Score, a.Score),
		)
	})

	out := mentions[:0]
	for _, m := range mentions {
		contained := false
		for _, kept := range out {
			if kept.Label == m.Label && kept.Start <= m.Start && m.End <= kept.End {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, m)
		}
	}
	return out
}

// Health always passes once the automaton is built.
func (m *Model) Health(context.Context) error {
	if len(m.langs) == 0 {
		return fmt.Errorf("lexicon: no languages loaded")
	}
	return nil
}

// Close releases nothing; the automaton is garbage collected.
func (m *Model) Close() error {
	return nil
}
