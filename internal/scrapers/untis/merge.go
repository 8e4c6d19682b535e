package untis

import (
	"fmt"
	"slices"
	"subplan-backend/internal/plan"
)

// snapshotBuilder merges page results into a snapshot. It must be fed pages in ascending
// page order, a page can continue the last group of the page before it.
type snapshotBuilder struct {
	dialect  Dialect
	snapshot *plan.Snapshot
	pages    int
}

func newSnapshotBuilder(dialect Dialect, status Status) *snapshotBuilder {
	return &snapshotBuilder{
		dialect:  dialect,
		snapshot: plan.NewSnapshot(status.Token, status.Time, dialect.Expiry),
	}
}

// carried holds what a day had before the current page. News and info repeated on every
// page are only kept once, repeats within one page are kept.
type carried struct {
	news []string
	info []plan.Info
}

func (b *snapshotBuilder) merge(page PageResult) error {
	b.pages++
	before := map[*plan.Day]carried{}
	for _, section := range page.Sections {
		day, ok := b.snapshot.GetDay(section.Date)
		if !ok {
			day = plan.NewDay(section.Date, section.Name, section.DateString, section.Week)
			err := b.snapshot.AddDay(day)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.Page, err)
			}
		}
		prev, seen := before[day]
		if !seen {
			prev = carried{news: day.News, info: day.Info}
			before[day] = prev
		}
		for _, line := range section.News {
			if !slices.Contains(prev.news, line) {
				day.AddNews(line)
			}
		}
		for _, info := range section.Info {
			if !slices.Contains(prev.info, info) {
				day.AddInfo(info)
			}
		}

		for _, block := range section.Blocks {
			group, err := b.groupFor(day, block)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.Page, err)
			}
			group.Append(block.Entries...)
		}
	}
	return nil
}

func (b *snapshotBuilder) groupFor(day *plan.Day, block GroupBlock) (*plan.Group, error) {
	last := day.LastGroup()
	if !block.Header {
		if last != nil {
			return last, nil
		}
		group := plan.NewGroup("", false, b.dialect.GroupsAreClasses)
		return group, day.AddGroup(group)
	}

	key := plan.GroupKey{Name: block.Name, Struck: block.Struck}
	if last != nil && last.Key == key {
		return last, nil
	}
	group := plan.NewGroup(block.Name, block.Struck, b.dialect.GroupsAreClasses)
	err := day.AddGroup(group)
	if err != nil {
		return nil, err
	}
	return group, nil
}
