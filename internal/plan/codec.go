package plan

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrUnsupportedVersion = errors.New("unsupported snapshot encoding version")

// codecVersion is written as the first field of every encoded snapshot. Bump it whenever
// the meaning of an existing field number changes.
const codecVersion = 1

// snapshot fields
const (
	snapVersion    protowire.Number = 1
	snapStatus     protowire.Number = 2
	snapStatusTime protowire.Number = 3
	snapExpiry     protowire.Number = 4
	snapLocation   protowire.Number = 5
	snapDay        protowire.Number = 6
)

// day fields
const (
	dayDate       protowire.Number = 1
	dayName       protowire.Number = 2
	dayDateString protowire.Number = 3
	dayWeek       protowire.Number = 4
	dayNews       protowire.Number = 5
	dayInfo       protowire.Number = 6
	dayGroup      protowire.Number = 7
)

// info fields
const (
	infoLabel protowire.Number = 1
	infoText  protowire.Number = 2
)

// group fields
const (
	groupName    protowire.Number = 1
	groupStruck  protowire.Number = 2
	groupIsClass protowire.Number = 3
	groupEntry   protowire.Number = 4
)

// entry fields
const (
	entryField  protowire.Number = 1
	entryStruck protowire.Number = 2
	entryIsNew  protowire.Number = 3
)

// entry field value fields
const (
	valueField protowire.Number = 1
	valueText  protowire.Number = 2
)

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSigned(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// Encode serializes a snapshot into its versioned binary form.
func Encode(s *Snapshot) []byte {
	b := appendVarint(nil, snapVersion, codecVersion)
	b = appendString(b, snapStatus, s.Status)
	if !s.StatusTime.IsZero() {
		b = appendSigned(b, snapStatusTime, s.StatusTime.Unix())
	}
	b = appendVarint(b, snapExpiry, uint64(s.Expiry))
	if loc := snapshotLocation(s); loc != nil {
		b = appendString(b, snapLocation, loc.String())
	}
	for _, day := range s.days {
		b = appendMessage(b, snapDay, encodeDay(day))
	}
	return b
}

func snapshotLocation(s *Snapshot) *time.Location {
	if len(s.days) > 0 {
		return s.days[0].Date.Location()
	}
	if !s.StatusTime.IsZero() {
		return s.StatusTime.Location()
	}
	return nil
}

func encodeDay(day *Day) []byte {
	b := appendSigned(nil, dayDate, day.Date.Unix())
	b = appendString(b, dayName, day.Name)
	b = appendString(b, dayDateString, day.DateString)
	b = appendString(b, dayWeek, day.Week)
	for _, line := range day.News {
		b = protowire.AppendTag(b, dayNews, protowire.BytesType)
		b = protowire.AppendString(b, line)
	}
	for _, info := range day.Info {
		var msg []byte
		msg = appendString(msg, infoLabel, info.Label)
		msg = appendString(msg, infoText, info.Text)
		b = appendMessage(b, dayInfo, msg)
	}
	for _, group := range day.order {
		b = appendMessage(b, dayGroup, encodeGroup(group))
	}
	return b
}

func encodeGroup(group *Group) []byte {
	b := appendString(nil, groupName, group.Key.Name)
	b = appendBool(b, groupStruck, group.Key.Struck)
	b = appendBool(b, groupIsClass, group.IsClass)
	for _, e := range group.Entries {
		b = appendMessage(b, groupEntry, encodeEntry(e))
	}
	return b
}

func encodeEntry(e Entry) []byte {
	var b []byte
	for f := Field(0); f < fieldCount; f++ {
		if e.Fields[f] == "" {
			continue
		}
		msg := appendVarint(nil, valueField, uint64(f))
		msg = appendString(msg, valueText, e.Fields[f])
		b = appendMessage(b, entryField, msg)
	}
	if e.Struck != 0 {
		b = appendVarint(b, entryStruck, uint64(e.Struck))
	}
	b = appendBool(b, entryIsNew, e.IsNew)
	return b
}

type wireField struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (f wireField) str() string {
	return string(f.bytes)
}

// walk calls fn for every varint and length-delimited field, other wire types are skipped.
func walk(b []byte, fn func(f wireField) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("read tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := wireField{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("read field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses the output of Encode. Fields unknown to this version are skipped.
func Decode(b []byte) (*Snapshot, error) {
	s := &Snapshot{}
	loc := time.UTC
	var rawDays [][]byte
	version := uint64(0)
	first := true

	err := walk(b, func(f wireField) error {
		if first {
			first = false
			if f.num != snapVersion || f.typ != protowire.VarintType {
				return fmt.Errorf("%w: missing version", ErrUnsupportedVersion)
			}
		}
		switch f.num {
		case snapVersion:
			version = f.varint
			if version != codecVersion {
				return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
			}
		case snapStatus:
			s.Status = f.str()
		case snapStatusTime:
			s.StatusTime = time.Unix(protowire.DecodeZigZag(f.varint), 0)
		case snapExpiry:
			s.Expiry = ExpiryPolicy(f.varint)
		case snapLocation:
			l, err := time.LoadLocation(f.str())
			if err != nil {
				return fmt.Errorf("load location: %w", err)
			}
			loc = l
		case snapDay:
			rawDays = append(rawDays, f.bytes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("%w: missing version", ErrUnsupportedVersion)
	}

	if !s.StatusTime.IsZero() {
		s.StatusTime = s.StatusTime.In(loc)
	}
	for _, raw := range rawDays {
		day, err := decodeDay(raw, loc)
		if err != nil {
			return nil, err
		}
		err = s.AddDay(day)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func decodeDay(b []byte, loc *time.Location) (*Day, error) {
	day := NewDay(time.Time{}, "", "", "")
	err := walk(b, func(f wireField) error {
		switch f.num {
		case dayDate:
			day.Date = time.Unix(protowire.DecodeZigZag(f.varint), 0).In(loc)
		case dayName:
			day.Name = f.str()
		case dayDateString:
			day.DateString = f.str()
		case dayWeek:
			day.Week = f.str()
		case dayNews:
			day.News = append(day.News, f.str())
		case dayInfo:
			var info Info
			err := walk(f.bytes, func(f wireField) error {
				switch f.num {
				case infoLabel:
					info.Label = f.str()
				case infoText:
					info.Text = f.str()
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode info: %w", err)
			}
			day.Info = append(day.Info, info)
		case dayGroup:
			group, err := decodeGroup(f.bytes)
			if err != nil {
				return err
			}
			return day.AddGroup(group)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode day: %w", err)
	}
	return day, nil
}

func decodeGroup(b []byte) (*Group, error) {
	var (
		name    string
		struck  bool
		isClass bool
		entries []Entry
	)
	err := walk(b, func(f wireField) error {
		switch f.num {
		case groupName:
			name = f.str()
		case groupStruck:
			struck = f.varint != 0
		case groupIsClass:
			isClass = f.varint != 0
		case groupEntry:
			e, err := decodeEntry(f.bytes)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode group: %w", err)
	}
	group := NewGroup(name, struck, isClass)
	group.Entries = entries
	return group, nil
}

func decodeEntry(b []byte) (Entry, error) {
	var e Entry
	err := walk(b, func(f wireField) error {
		switch f.num {
		case entryField:
			var (
				field uint64
				text  string
			)
			err := walk(f.bytes, func(f wireField) error {
				switch f.num {
				case valueField:
					field = f.varint
				case valueText:
					text = f.str()
				}
				return nil
			})
			if err != nil {
				return err
			}
			if field < uint64(fieldCount) {
				e.Fields[field] = text
			}
		case entryStruck:
			e.Struck = FieldSet(f.varint)
		case entryIsNew:
			e.IsNew = f.varint != 0
		}
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	e.LessonNum, e.LessonKnown = LessonNumber(e.Fields[FieldLesson])
	return e, nil
}
