package crisis

import (
	"slices"
	"strings"
	"unicode"
)

type Result struct {
	Level    Level    `json:"level"`
	Severity Severity `json:"severity,omitempty"`
	Matched  []string `json:"matched_keywords"`
}

func (r Result) IsCrisis() bool { return r.Level == LevelCrisis }

// Escalate reports whether the result needs an out-of-band alert.
func (r Result) Escalate() bool { return r.Severity == SeverityImminent }

// Classify does plain substring matching for crisis and venting phrases: no
// stemming and no negation handling, so "I don't want to kill myself" is
// still a crisis. Imminence markers must match whole words, so "abhi" does
// not fire inside "Abhishek".
func (l *Lexicon) Classify(text string) Result {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return Result{Level: LevelNone, Matched: []string{}}
	}

	if matched, sev := match(lower, l.crisis); len(matched) > 0 {
		if imm := matchWords(words(lower), l.imminence); len(imm) > 0 {
			matched = append(matched, imm...)
			sev = SeverityImminent
		}
		return Result{Level: LevelCrisis, Severity: sev, Matched: matched}
	}

	if matched, sev := match(lower, l.venting); len(matched) > 0 {
		return Result{Level: LevelVenting, Severity: sev, Matched: matched}
	}
	return Result{Level: LevelNone, Matched: []string{}}
}

// Classify uses the embedded lexicon.
func Classify(text string) Result {
	return Default().Classify(text)
}

func match(lower string, phrases []phrase) ([]string, Severity) {
	var (
		out []string
		sev Severity
	)
	for _, p := range phrases {
		if !strings.Contains(lower, p.lower) {
			continue
		}
		out = append(out, p.text)
		if p.severity.rank() > sev.rank() {
			sev = p.severity
		}
	}
	return out, sev
}

func matchWords(tokens []string, phrases []phrase) []string {
	var out []string
	for _, p := range phrases {
		if containsRun(tokens, p.words) {
			out = append(out, p.text)
		}
	}
	return out
}

func containsRun(tokens, run []string) bool {
	if len(run) == 0 || len(run) > len(tokens) {
		return false
	}
	for i := 0; i+len(run) <= len(tokens); i++ {
		if slices.Equal(tokens[i:i+len(run)], run) {
			return true
		}
	}
	return false
}

// words splits on anything that is not a letter, digit or combining mark;
// Devanagari vowel signs are marks.
func words(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
}
