package untis

import (
	"bytes"
	"fmt"
	"regexp"
	"subplan-backend/pkg/htmlutil"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Status identifies one published version of a plan.
type Status struct {
	Token string
	Time  time.Time
}

var statusRegex = regexp.MustCompile(`Stand:\s*(\d{1,2}\.\d{1,2}\.\d{4})\s+(\d{1,2}:\d{2})`)

// ExtractStatus finds the "Stand: DD.MM.YYYY HH:MM" marker of a page, looking in the
// monitor head first and in the whole document after that.
func ExtractStatus(page []byte, loc *time.Location) (Status, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return Status{}, fmt.Errorf("parse page: %w", err)
	}

	match := statusRegex.FindStringSubmatch(htmlutil.NormalizeText(doc.Find(".mon_head").Text()))
	if match == nil {
		match = statusRegex.FindStringSubmatch(htmlutil.NormalizeText(doc.Text()))
	}
	if match == nil {
		excerpt := htmlutil.NormalizeText(doc.Text())
		if len(excerpt) > 64 {
			excerpt = excerpt[:64]
		}
		return Status{}, &MalformedStatusError{Excerpt: excerpt}
	}

	token := match[1] + " " + match[2]
	t, err := time.ParseInLocation("2.1.2006 15:04", token, loc)
	if err != nil {
		return Status{}, &MalformedStatusError{Excerpt: token}
	}
	return Status{Token: token, Time: t}, nil
}
