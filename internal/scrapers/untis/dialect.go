package untis

import (
	"fmt"
	"strings"
	"subplan-backend/internal/plan"
)

// StartPage is the number of the first page, a continuation marker pointing back to it
// ends the page sequence.
const StartPage = 1

// Dialect describes the differences between the page layouts of one monitor family.
type Dialect struct {
	Name string
	// Columns maps the cells of a substitution row to fields, by position.
	Columns []plan.Field
	// GroupsAreClasses is true when group headers are class labels that expand into
	// class tokens.
	GroupsAreClasses bool
	// TrackFieldStrikes records which cells of a row are struck through.
	TrackFieldStrikes bool
	Expiry            plan.ExpiryPolicy
}

var Students = Dialect{
	Name: "students",
	Columns: []plan.Field{
		plan.FieldTeacher,
		plan.FieldSubstitute,
		plan.FieldLesson,
		plan.FieldSubject,
		plan.FieldRoom,
		plan.FieldCoveredFrom,
		plan.FieldHint,
	},
	GroupsAreClasses: true,
	Expiry:           plan.ExpireAfterDay,
}

var Teachers = Dialect{
	Name: "teachers",
	Columns: []plan.Field{
		plan.FieldLesson,
		plan.FieldClass,
		plan.FieldSubstitute,
		plan.FieldSubject,
		plan.FieldRoom,
		plan.FieldCoveredFrom,
		plan.FieldHint,
	},
	TrackFieldStrikes: true,
	Expiry:            plan.ExpireAtDayStart,
}

func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Students.Name:
		return Students, nil
	case Teachers.Name:
		return Teachers, nil
	}
	return Dialect{}, fmt.Errorf("unknown dialect %q", name)
}

// PageName returns the file name of a page, "subst_001.htm" for page 1.
func PageName(page int) string {
	return fmt.Sprintf("subst_%03d.htm", page)
}
