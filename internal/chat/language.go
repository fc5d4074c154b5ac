package chat

import (
	"strings"
	"unicode"
)

const (
	LangEnglish  = "en"
	LangHindi    = "hi"
	LangHinglish = "hinglish"
)

// Common romanized Hindi words; two or more mark a message as Hinglish.
var hinglishMarkers = map[string]struct{}{
	"hai": {}, "hain": {}, "nahi": {}, "nahin": {}, "mujhe": {}, "mera": {}, "meri": {},
	"kya": {}, "kyun": {}, "bahut": {}, "yaar": {}, "accha": {}, "acha": {}, "kuch": {},
	"hoon": {}, "raha": {}, "rahi": {}, "lagta": {}, "abhi": {},
	"aaj": {}, "sab": {}, "koi": {}, "tum": {}, "aap": {}, "dil": {}, "zindagi": {},
}

// DetectLanguage is a best-effort tag stored with each message.
func DetectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			return LangHindi
		}
	}

	hits := 0
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if _, ok := hinglishMarkers[w]; ok {
			hits++
			if hits >= 2 {
				return LangHinglish
			}
		}
	}
	return LangEnglish
}
