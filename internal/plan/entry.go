package plan

import "strings"

// Field is the meaning of one column of a substitution row.
type Field uint8

const (
	FieldTeacher Field = iota
	FieldSubstitute
	FieldLesson
	FieldSubject
	FieldRoom
	FieldCoveredFrom
	FieldHint
	FieldClass

	fieldCount
)

var fieldNames = [fieldCount]string{
	"teacher",
	"substitute",
	"lesson",
	"subject",
	"room",
	"covered_from",
	"hint",
	"class",
}

func (f Field) String() string {
	if f >= fieldCount {
		return "unknown"
	}
	return fieldNames[f]
}

// ParseField is the inverse of Field.String.
func ParseField(name string) (Field, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// FieldSet is a bitset of fields.
type FieldSet uint16

func (s FieldSet) Has(f Field) bool {
	return s&(1<<f) != 0
}

func (s FieldSet) With(f Field) FieldSet {
	return s | (1 << f)
}

// Fields lists the members of the set in Field order.
func (s FieldSet) Fields() []Field {
	var out []Field
	for f := Field(0); f < fieldCount; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Entry is a single substitution row.
type Entry struct {
	Fields [fieldCount]string
	// Struck marks fields that were published struck through, only recorded by dialects
	// that track it.
	Struck FieldSet

	LessonNum   int
	LessonKnown bool

	// IsNew is set by Diff, it is not part of the identity of an entry.
	IsNew bool
}

// NewEntry builds an entry and derives its lesson number from the lesson field.
func NewEntry(fields map[Field]string, struck FieldSet) Entry {
	e := Entry{Struck: struck}
	for f, v := range fields {
		if f < fieldCount {
			e.Fields[f] = v
		}
	}
	e.LessonNum, e.LessonKnown = LessonNumber(e.Fields[FieldLesson])
	return e
}

func (e Entry) Get(f Field) string {
	if f >= fieldCount {
		return ""
	}
	return e.Fields[f]
}

// Equal compares every textual field and the strike flags, IsNew is ignored.
func (e Entry) Equal(other Entry) bool {
	return e.Fields == other.Fields && e.Struck == other.Struck
}
