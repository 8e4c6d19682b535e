package untis

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrWaveTimeout            = errors.New("wave timed out")
	ErrMissingContinuation    = errors.New("page has no continuation marker")
	ErrUnexpectedContinuation = errors.New("continuation marker skips pages")
	ErrUnexpectedStatus       = errors.New("unexpected http status")
)

// MalformedStatusError means the first page carries no status marker, which usually means
// the upstream layout changed.
type MalformedStatusError struct {
	Excerpt string
}

func (e *MalformedStatusError) Error() string {
	return fmt.Sprintf("no status marker found in %q", e.Excerpt)
}

// StaleDataError is returned by the page parser when it meets a day older than the cutoff.
// Everything parsed before that day is kept.
type StaleDataError struct {
	Page   int
	Date   time.Time
	Cutoff time.Time
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf(
		"page %d: day %s is older than %s",
		e.Page, e.Date.Format("2006-01-02"), e.Cutoff.Format("2006-01-02"),
	)
}

type MalformedTitleError struct {
	Page  int
	Title string
}

func (e *MalformedTitleError) Error() string {
	return fmt.Sprintf("page %d: malformed day title %q", e.Page, e.Title)
}

type PageLimitExceededError struct {
	Limit int
}

func (e *PageLimitExceededError) Error() string {
	return fmt.Sprintf("no terminal page within %d pages", e.Limit)
}
