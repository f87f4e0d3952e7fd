package walkthrough

import (
	"encoding/hex"
	"hash/fnv"
	"strings"
	"unicode"
)

// UntitledToken is the token of empty input.
const UntitledToken = "untitled"

// classTokens maps the known license class designations to their canonical token.
var classTokens = map[string]string{
	"a": "class-a",
	"b": "class-b",
	"c": "class-c",
}

// classNoise are words dropped when looking for a class designation: "Class A CDL" -> "a".
var classNoise = map[string]bool{
	"class":   true,
	"cdl":     true,
	"license": true,
	"licence": true,
}

// ToToken maps a free-text identifier onto the stable slug used to address documents.
// "Class A", "class-a" and "CLASS_A" all map to "class-a"; other input is slugified.
// It is total and never returns an empty string.
func ToToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UntitledToken
	}

	words := splitWords(strings.ToLower(s))
	if tok, ok := knownToken(words); ok {
		return tok
	}
	if len(words) > 0 {
		return strings.Join(words, "-")
	}

	// nothing sluggable left (punctuation or symbols only): derive a stable token from the input
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return "t-" + hex.EncodeToString(h.Sum(nil))
}

func knownToken(words []string) (string, bool) {
	var rest []string
	for _, w := range words {
		if !classNoise[w] {
			rest = append(rest, w)
		}
	}
	if len(rest) == 1 {
		if tok, ok := classTokens[rest[0]]; ok {
			return tok, true
		}
	}
	// "classa" is a single word
	if len(words) == 1 && strings.HasPrefix(words[0], "class") {
		if tok, ok := classTokens[strings.TrimPrefix(words[0], "class")]; ok {
			return tok, true
		}
	}
	return "", false
}

// splitWords splits on anything that is not a letter or a digit.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
}
