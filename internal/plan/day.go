package plan

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrDuplicateGroup = errors.New("duplicate group")

// DayKeyLayout formats the date of a day into its key.
const DayKeyLayout = "2006-01-02"

type Info struct {
	Label string
	Text  string
}

type Day struct {
	// Date is midnight of the day in the plan's location.
	Date       time.Time
	Name       string
	DateString string
	Week       string
	News       []string
	Info       []Info

	groups map[GroupKey]*Group
	order  []*Group
}

func NewDay(date time.Time, name, dateString, week string) *Day {
	return &Day{
		Date:       date,
		Name:       name,
		DateString: dateString,
		Week:       week,
		groups:     map[GroupKey]*Group{},
	}
}

func (d *Day) Key() string {
	return d.Date.Format(DayKeyLayout)
}

func (d *Day) AddGroup(group *Group) error {
	if _, exists := d.groups[group.Key]; exists {
		return fmt.Errorf("%w: %q (struck: %v) on %s", ErrDuplicateGroup, group.Key.Name, group.Key.Struck, d.Key())
	}
	d.groups[group.Key] = group
	d.order = append(d.order, group)
	return nil
}

func (d *Day) Group(key GroupKey) (*Group, bool) {
	g, ok := d.groups[key]
	return g, ok
}

// LastGroup returns the most recently added group.
func (d *Day) LastGroup() *Group {
	if len(d.order) == 0 {
		return nil
	}
	return d.order[len(d.order)-1]
}

// Groups returns the groups of the day in sort key order.
func (d *Day) Groups() []*Group {
	out := slices.Clone(d.order)
	slices.SortStableFunc(out, func(a, b *Group) int {
		return compareGroupKeys(a.Key, b.Key)
	})
	return out
}

func (d *Day) AddNews(lines ...string) {
	d.News = append(d.News, lines...)
}

func (d *Day) AddInfo(info ...Info) {
	d.Info = append(d.Info, info...)
}
