package chrono

import (
	"sync"
	"time"
	_ "time/tzdata"
)

var berlin *time.Location

func init() {
	var err error
	berlin, err = time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
}

// Berlin returns a [*time.Location] for Europe/Berlin, the timezone plans are published in.
func Berlin() *time.Location {
	return berlin
}

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in Location().
	Now() time.Time
	// Location is the timezone dates of the upstream plan are interpreted in.
	Location() *time.Location
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

// NewStandardTime is the constructor of StandardTime.
func NewStandardTime() StandardTime {
	return StandardTime{}
}

func (StandardTime) Now() time.Time {
	return time.Now().In(berlin)
}

func (StandardTime) Location() *time.Location {
	return berlin
}

// FixedTime is a TimeAPI that only moves when told to.
type FixedTime struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedTime(now time.Time) *FixedTime {
	return &FixedTime{now: now}
}

func (f *FixedTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FixedTime) Location() *time.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.Location()
}

func (f *FixedTime) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
