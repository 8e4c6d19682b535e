package plan

import "time"

// View is the serializable projection of a snapshot handed to renderers.
type View struct {
	Status     string    `json:"status"`
	StatusTime string    `json:"status_time,omitempty"`
	Days       []DayView `json:"days"`
}

type DayView struct {
	Date   string      `json:"date"`
	Name   string      `json:"name"`
	Week   string      `json:"week,omitempty"`
	News   []string    `json:"news,omitempty"`
	Info   []InfoView  `json:"info,omitempty"`
	Groups []GroupView `json:"groups"`
}

type InfoView struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type GroupView struct {
	Name    string      `json:"name"`
	Pretty  string      `json:"pretty,omitempty"`
	Struck  bool        `json:"striked,omitempty"`
	Entries []EntryView `json:"entries"`
}

type EntryView struct {
	Fields    map[string]string `json:"fields"`
	Struck    []string          `json:"struck,omitempty"`
	LessonNum *int              `json:"lesson_num,omitempty"`
	New       bool              `json:"new,omitempty"`
}

// Project renders the snapshot, keeping only groups that match one of the selected
// tokens. A nil selection keeps every group. Days are kept even when none of their
// groups match so their news stay visible.
func (s *Snapshot) Project(selection []string) View {
	var filter map[string]struct{}
	if selection != nil {
		filter = make(map[string]struct{}, len(selection))
		for _, t := range selection {
			filter[t] = struct{}{}
		}
	}

	view := View{
		Status: s.Status,
		Days:   make([]DayView, 0, len(s.days)),
	}
	if !s.StatusTime.IsZero() {
		view.StatusTime = s.StatusTime.Format(time.RFC3339)
	}
	for _, day := range s.days {
		dv := DayView{
			Date:   day.Key(),
			Name:   day.Name,
			Week:   day.Week,
			News:   day.News,
			Groups: []GroupView{},
		}
		for _, info := range day.Info {
			dv.Info = append(dv.Info, InfoView{Label: info.Label, Text: info.Text})
		}
		for _, group := range day.Groups() {
			if filter != nil && !group.Matches(filter) {
				continue
			}
			dv.Groups = append(dv.Groups, projectGroup(group))
		}
		view.Days = append(view.Days, dv)
	}
	return view
}

func projectGroup(group *Group) GroupView {
	gv := GroupView{
		Name:    group.Key.Name,
		Pretty:  group.Pretty,
		Struck:  group.Key.Struck,
		Entries: make([]EntryView, 0, len(group.Entries)),
	}
	for _, e := range group.Entries {
		ev := EntryView{
			Fields: map[string]string{},
			New:    e.IsNew,
		}
		for f := Field(0); f < fieldCount; f++ {
			if e.Fields[f] != "" {
				ev.Fields[f.String()] = e.Fields[f]
			}
		}
		for _, f := range e.Struck.Fields() {
			ev.Struck = append(ev.Struck, f.String())
		}
		if e.LessonKnown {
			n := e.LessonNum
			ev.LessonNum = &n
		}
		gv.Entries = append(gv.Entries, ev)
	}
	return gv
}
