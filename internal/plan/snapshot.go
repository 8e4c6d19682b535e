package plan

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"
)

var ErrDuplicateDay = errors.New("duplicate day")

// ExpiryPolicy decides when a day is dropped from a snapshot.
type ExpiryPolicy uint8

const (
	// ExpireAfterDay keeps a day until the end of its date.
	ExpireAfterDay ExpiryPolicy = iota
	// ExpireAtDayStart drops a day as soon as its date begins.
	ExpireAtDayStart
)

func (p ExpiryPolicy) ExpiresAt(date time.Time) time.Time {
	if p == ExpireAtDayStart {
		return date
	}
	return date.AddDate(0, 0, 1)
}

func (p ExpiryPolicy) String() string {
	if p == ExpireAtDayStart {
		return "day_start"
	}
	return "after_day"
}

// Snapshot is the merged plan as of one crawl. It is only mutated while it is built,
// afterwards it must be treated as read-only.
type Snapshot struct {
	Status     string
	StatusTime time.Time
	Expiry     ExpiryPolicy

	days []*Day
}

func NewSnapshot(status string, statusTime time.Time, expiry ExpiryPolicy) *Snapshot {
	return &Snapshot{
		Status:     status,
		StatusTime: statusTime,
		Expiry:     expiry,
	}
}

func (s *Snapshot) search(date time.Time) (int, bool) {
	i := sort.Search(len(s.days), func(i int) bool {
		return !s.days[i].Date.Before(date)
	})
	return i, i < len(s.days) && s.days[i].Date.Equal(date)
}

func (s *Snapshot) AddDay(day *Day) error {
	i, found := s.search(day.Date)
	if found {
		return fmt.Errorf("%w: %s", ErrDuplicateDay, day.Key())
	}
	s.days = slices.Insert(s.days, i, day)
	return nil
}

func (s *Snapshot) GetDay(date time.Time) (*Day, bool) {
	i, found := s.search(date)
	if !found {
		return nil, false
	}
	return s.days[i], true
}

func (s *Snapshot) HasDay(date time.Time) bool {
	_, found := s.search(date)
	return found
}

// Days returns the days sorted by date. The slice must not be modified.
func (s *Snapshot) Days() []*Day {
	return s.days
}

// PruneExpiredDays removes the days whose expiry is at or before now and reports whether
// anything was removed. Only the expired prefix is visited, the remaining days are
// resliced in place. Clone first when readers may still hold the snapshot.
func (s *Snapshot) PruneExpiredDays(now time.Time) bool {
	k := 0
	for k < len(s.days) && !now.Before(s.Expiry.ExpiresAt(s.days[k].Date)) {
		k++
	}
	if k == 0 {
		return false
	}
	s.days = s.days[k:]
	return true
}

// Clone copies the snapshot's day list, the days themselves are shared.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.days = slices.Clone(s.days)
	return &out
}
