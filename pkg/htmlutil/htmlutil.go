package htmlutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// NormalizeText turns non-breaking spaces into spaces, collapses whitespace runs, drops
// non-printable runes and trims the result.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = innerWhitespace.ReplaceAllString(s, " ")
	s = removeNonPrintable(s)
	return strings.TrimSpace(s)
}

// Attr returns the value of an attribute, keys are matched case-insensitively.
func Attr(attrs []html.Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// HasClass reports whether the class attribute lists class.
func HasClass(attrs []html.Attribute, class string) bool {
	value, ok := Attr(attrs, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(value) {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}
