package extract

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeywordSet holds the venue keywords the place extractor matches on.
// Operators tune the list per deployment region via a yaml file.
type KeywordSet struct {
	Venues []string `yaml:"venues" json:"venues"`

	re *regexp.Regexp
}

// LoadKeywords reads a keyword file, falling back to the built-in defaults
// when no path is configured.
func LoadKeywords(path string) (*KeywordSet, error) {
	if path == "" {
		return DefaultKeywords(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	var ks KeywordSet
	if err := yaml.Unmarshal(content, &ks); err != nil {
		return nil, err
	}
	if len(ks.Venues) == 0 {
		return nil, errors.New("no venue keywords configured")
	}
	return &ks, nil
}

func DefaultKeywords() *KeywordSet {
	return &KeywordSet{Venues: []string{
		"Sala", "Dom", "Centrum", "Teatr", "Filharmonia", "Orkiestra",
		"Klub", "Muzeum", "Galeria", "Kino", "Amfiteatr", "MOK", "ROK",
	}}
}

func (k *KeywordSet) pattern() *regexp.Regexp {
	if k.re == nil {
		quoted := make([]string, len(k.Venues))
		for i, v := range k.Venues {
			quoted[i] = regexp.QuoteMeta(v)
		}
		// Keyword plus up to 80 chars of tail, cut later at sentence
		// punctuation; the cap keeps unrelated prose out.
		k.re = regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b[\s\S]{0,80}`)
	}
	return k.re
}
