// Package crisis classifies free text for self-harm risk using static
// keyword lists and renders the fixed crisis-resource block.
package crisis

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

type Level string

const (
	LevelNone    Level = "none"
	LevelVenting Level = "venting"
	LevelCrisis  Level = "crisis"
)

type Severity string

const (
	SeverityNone     Severity = ""
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityImminent Severity = "imminent"
)

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityModerate:
		return 2
	case SeverityHigh:
		return 3
	case SeverityImminent:
		return 4
	}
	return 0
}

type Hotline struct {
	Name   string `yaml:"name" json:"name"`
	Number string `yaml:"number" json:"number"`
}

type phrase struct {
	text     string
	lower    string
	words    []string
	severity Severity
}

// Lexicon is immutable after construction and safe for concurrent use.
type Lexicon struct {
	crisis    []phrase
	imminence []phrase
	venting   []phrase
	hotlines  []Hotline
}

type lexiconFile struct {
	Crisis []struct {
		Phrase   string   `yaml:"phrase"`
		Severity Severity `yaml:"severity"`
	} `yaml:"crisis"`
	Imminence []string  `yaml:"imminence"`
	Venting   []string  `yaml:"venting"`
	Hotlines  []Hotline `yaml:"hotlines"`
}

// Parse builds a Lexicon from its YAML form.
func Parse(data []byte) (*Lexicon, error) {
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("crisis: parse lexicon: %w", err)
	}
	if len(f.Crisis) == 0 {
		return nil, errors.New("crisis: lexicon has no crisis phrases")
	}
	if len(f.Hotlines) == 0 {
		return nil, errors.New("crisis: lexicon has no hotlines")
	}

	lex := &Lexicon{hotlines: f.Hotlines}
	for _, c := range f.Crisis {
		sev := c.Severity
		switch sev {
		case SeverityModerate, SeverityHigh:
		case SeverityNone:
			sev = SeverityHigh
		default:
			return nil, fmt.Errorf("crisis: phrase %q: unsupported severity %q", c.Phrase, c.Severity)
		}
		if p, ok := newPhrase(c.Phrase, sev); ok {
			lex.crisis = append(lex.crisis, p)
		}
	}
	for _, s := range f.Imminence {
		if p, ok := newPhrase(s, SeverityImminent); ok {
			lex.imminence = append(lex.imminence, p)
		}
	}
	for _, s := range f.Venting {
		if p, ok := newPhrase(s, SeverityLow); ok {
			lex.venting = append(lex.venting, p)
		}
	}
	return lex, nil
}

func newPhrase(s string, sev Severity) (phrase, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return phrase{}, false
	}
	lower := strings.ToLower(s)
	return phrase{text: s, lower: lower, words: words(lower), severity: sev}, true
}

// LoadFile reads a lexicon from disk.
func LoadFile(path string) (*Lexicon, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crisis: read lexicon: %w", err)
	}
	return Parse(b)
}

var defaultLexicon = sync.OnceValue(func() *Lexicon {
	lex, err := Parse(defaultLexiconYAML)
	if err != nil {
		panic(err)
	}
	return lex
})

// Default returns the embedded lexicon.
func Default() *Lexicon {
	return defaultLexicon()
}

// Hotlines returns a copy of the configured hotline list.
func (l *Lexicon) Hotlines() []Hotline {
	return append([]Hotline(nil), l.hotlines...)
}

type Stats struct {
	Crisis    int `json:"crisis" yaml:"crisis"`
	Imminence int `json:"imminence" yaml:"imminence"`
	Venting   int `json:"venting" yaml:"venting"`
	Hotlines  int `json:"hotlines" yaml:"hotlines"`
}

func (l *Lexicon) Stats() Stats {
	return Stats{
		Crisis:    len(l.crisis),
		Imminence: len(l.imminence),
		Venting:   len(l.venting),
		Hotlines:  len(l.hotlines),
	}
}
