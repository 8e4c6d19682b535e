package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodecRoundTrip(t *testing.T) {
	s := testSnapshot(t, date(2026, 10, 19), date(2026, 10, 20))
	day, _ := s.GetDay(date(2026, 10, 19))
	struck := NewGroup("MUE", true, false)
	struck.Append(NewEntry(map[Field]string{
		FieldLesson: "5-6",
		FieldClass:  "10A",
		FieldRoom:   "102",
	}, FieldSet(0).With(FieldRoom)))
	require.NoError(t, day.AddGroup(struck))
	Diff(s, nil)

	decoded, err := Decode(Encode(s))
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, s.Status, decoded.Status)
	require.True(t, s.StatusTime.Equal(decoded.StatusTime))
	require.Equal(t, s.Expiry, decoded.Expiry)
	require.Equal(t, s.Project(nil), decoded.Project(nil))
	require.Empty(t, Diff(decoded, s))

	decodedDay, ok := decoded.GetDay(date(2026, 10, 19))
	require.True(t, ok)
	require.Equal(t, "Europe/Berlin", decodedDay.Date.Location().String())
	group, ok := decodedDay.Group(GroupKey{Name: "MUE", Struck: true})
	require.True(t, ok)
	require.False(t, group.IsClass)
	require.Equal(t, []string{"MUE"}, group.Tokens)
	require.True(t, group.Entries[0].Struck.Has(FieldRoom))
	require.Equal(t, 6, group.Entries[0].LessonNum)
}

func TestCodecVersion(t *testing.T) {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 99)
	_, err := Decode(b)
	require.True(t, errors.Is(err, ErrUnsupportedVersion))

	b = protowire.AppendTag(nil, 2, protowire.BytesType)
	b = protowire.AppendString(b, "status")
	_, err = Decode(b)
	require.True(t, errors.Is(err, ErrUnsupportedVersion))

	_, err = Decode(nil)
	require.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestCodecSkipsUnknownFields(t *testing.T) {
	s := testSnapshot(t, date(2026, 10, 19))
	b := Encode(s)
	b = protowire.AppendTag(b, 42, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer writer")
	b = protowire.AppendTag(b, 43, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)

	decoded, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, decoded.Days(), 1)
}
