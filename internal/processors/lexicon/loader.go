package lexicon

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
)

//go:embed lexicons/*.yaml
var builtin embed.FS

// Bundle is the parsed set of lexicon files, one per language.
type Bundle struct {
	Files map[string]*File
	// Sources records where each language was read from.
	Sources map[string]string
}

// Version combines per-language versions into one stable string.
func (b *Bundle) Version() string {
	langs := make([]string, 0, len(b.Files))
	for lang := range b.Files {
		langs = append(langs, lang)
	}
	slices.Sort(langs)

	parts := make([]string, len(langs))
	for i, lang := range langs {
		parts[i] = lang + "@" + b.Files[lang].Version
	}
	return strings.Join(parts, "+")
}

// LoadBundle reads <modelDir>/lexicon/<lang>.yaml for each language, falling
// back to the built-in lexicon. Languages with neither are skipped.
func LoadBundle(modelDir string, languages []string) (*Bundle, error) {
	b := &Bundle{Files: make(map[string]*File), Sources: make(map[string]string)}
	for _, lang := range languages {
		data, source, err := readLexicon(modelDir, lang)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var f File
		if err = yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse lexicon %s: %w", source, err)
		}
		if f.Language == "" {
			f.Language = lang
		}
		if f.Version == "" {
			f.Version = "0"
		}
		b.Files[lang] = &f
		b.Sources[lang] = source
	}
	if len(b.Files) == 0 {
		return nil, fmt.Errorf("no lexicon found for languages %v", languages)
	}
	return b, nil
}

func readLexicon(modelDir, lang string) ([]byte, string, error) {
	if modelDir != "" {
		path := filepath.Join(modelDir, "lexicon", lang+".yaml")
		data, err := os.ReadFile(path)
		if err == nil {
			return data, path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, path, fmt.Errorf("read lexicon %s: %w", path, err)
		}
	}

	name := "lexicons/" + lang + ".yaml"
	data, err := builtin.ReadFile(name)
	if err != nil {
		return nil, "builtin:" + name, err
	}
	return data, "builtin:" + name, nil
}

// Loader compiles the bundle each time the pool asks for a fresh instance.
func Loader(b *Bundle) engine.Loader {
	return func(ctx context.Context) (engine.Model, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewModel(b)
	}
}
