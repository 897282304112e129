package domain

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguages is the supported set when configuration names none.
var DefaultLanguages = []string{"en", "ru"}

// LanguageSet is the fixed set of languages the processors are built for.
type LanguageSet struct {
	bases map[string]language.Tag
}

// NewLanguageSet builds a set from BCP 47 codes. Region and script subtags are ignored.
func NewLanguageSet(codes []string) (*LanguageSet, error) {
	if len(codes) == 0 {
		codes = DefaultLanguages
	}
	set := &LanguageSet{bases: make(map[string]language.Tag, len(codes))}
	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("parse language %q: %w", code, err)
		}
		base, _ := tag.Base()
		set.bases[base.String()] = language.Make(base.String())
	}
	return set, nil
}

// Resolve maps a caller-supplied code ("en", "en-GB", "RU") onto a supported base language.
func (s *LanguageSet) Resolve(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: empty language", ErrUnsupportedLanguage)
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	base, _ := tag.Base()
	if _, ok := s.bases[base.String()]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	return base.String(), nil
}

// Tag returns the language tag for a resolved base code.
func (s *LanguageSet) Tag(base string) language.Tag {
	if t, ok := s.bases[base]; ok {
		return t
	}
	return language.Und
}

// Codes returns the supported base codes, sorted.
func (s *LanguageSet) Codes() []string {
	out := make([]string, 0, len(s.bases))
	for b := range s.bases {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
