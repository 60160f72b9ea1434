package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubjectID_ParseAndFormat(t *testing.T) {
	req := require.New(t)

	id, err := ParseSubjectID("00ff01020304a0b1")
	req.NoError(err)
	req.Equal("00ff01020304a0b1", id.String())
	req.False(id.IsZero())
}

func TestSubjectID_ParseRejectsMalformedInput(t *testing.T) {
	req := require.New(t)

	for _, input := range []string{"", "zz", "00ff01020304a0", "00ff01020304a0b1ff", "00ff01020304a0bz"} {
		_, err := ParseSubjectID(input)
		req.Error(err, "input %q", input)
	}
}

func TestSubjectID_ZeroMeansAbsent(t *testing.T) {
	req := require.New(t)

	var id SubjectID
	req.True(id.IsZero())
	req.Equal("0000000000000000", id.String())
}

func TestSubjectID_OrderingIsByteWise(t *testing.T) {
	req := require.New(t)

	low, err := ParseSubjectID("0000000000000001")
	req.NoError(err)
	high, err := ParseSubjectID("0100000000000000")
	req.NoError(err)

	req.Negative(low.Compare(high))
	req.Positive(high.Compare(low))
	req.Zero(low.Compare(low))
}

func TestNewSubjectID_NeverReserved(t *testing.T) {
	req := require.New(t)

	seen := make(map[SubjectID]struct{})
	for i := 0; i < 100; i++ {
		id := NewSubjectID()
		req.False(id.IsZero())
		req.NotEqual(SystemSubject, id)
		seen[id] = struct{}{}
	}
	req.Len(seen, 100)
}
