package untis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// FuzzPageParser checks that the parser never panics and that splitting the input at an
// arbitrary point does not change what a successful parse produces.
func FuzzPageParser(f *testing.F) {
	for _, markup := range threePages(testStatus) {
		f.Add(markup, 17)
	}
	f.Add(`<div class="mon_title">19.10.2026 Montag</div><table class="mon_list"><tr><td>a`, 40)
	f.Add(`<<<!-- <table class="info"> --><s><td class=inline_header>`, 3)

	f.Fuzz(func(t *testing.T, markup string, split int) {
		if split < 0 {
			split = -split
		}
		if len(markup) > 0 {
			split %= len(markup) + 1
		} else {
			split = 0
		}

		whole, wholeErr := parse(t, Students, 2, markup, max(1, len(markup)))
		parser := NewPageParser(Students, testDate(2026, 10, 19), 2, testNow.Location(), nil)
		_, splitErr := parser.Write([]byte(markup[:split]))
		if splitErr == nil {
			_, splitErr = parser.Write([]byte(markup[split:]))
		}
		if splitErr == nil {
			splitErr = parser.Close()
		}
		if wholeErr != nil || splitErr != nil {
			return
		}
		if diff := cmp.Diff(whole, parser.Result()); diff != "" {
			t.Fatalf("split at %d: %s", split, diff)
		}
	})
}
