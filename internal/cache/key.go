package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
)

// Key identifies one result: the same text, resolved mode, engine versions,
// language and confidence floor always yield the same key.
func Key(text string, mode domain.Mode, versions map[string]string, lang string, minConfidence float64) string {
	sum := sha256.Sum256([]byte(text))

	engines := make([]string, 0, len(versions))
	for name, version := range versions {
		engines = append(engines, name+"@"+version)
	}
	slices.Sort(engines)

	return strings.Join([]string{
		hex.EncodeToString(sum[:]),
		string(mode),
		strings.Join(engines, ","),
		lang,
		strconv.FormatFloat(minConfidence, 'f', -1, 64),
	}, "|")
}
