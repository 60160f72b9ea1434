// Package domain contains core concepts of the realtime chat core.
// This file defines the SubjectID identifier and its invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"chat-relay/errors"
)

// SubjectID is the fixed-width opaque identifier used for users, channels,
// calls and messages. Equality and ordering are byte-wise; the zero value
// means "absent" and never refers to a real entity.
type SubjectID [8]byte

// SystemSubject is the distinguished all-ones identifier reserved for
// actions performed by the system itself.
var SystemSubject = SubjectID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// NewSubjectID returns a fresh random identifier, never the zero value
// and never the system subject.
func NewSubjectID() SubjectID {
	var id SubjectID
	for {
		if _, err := rand.Read(id[:]); err != nil {
			panic(err) // crypto/rand failure is unrecoverable
		}
		if !id.IsZero() && id != SystemSubject {
			return id
		}
	}
}

// ParseSubjectID decodes the 16-char lowercase hex form.
func ParseSubjectID(s string) (SubjectID, error) {
	var id SubjectID
	if len(s) != hex.EncodedLen(len(id)) {
		return SubjectID{}, errors.ErrInvalidSubjectID
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return SubjectID{}, errors.ErrInvalidSubjectID
	}
	return id, nil
}

func (id SubjectID) IsZero() bool {
	return id == SubjectID{}
}

// String serializes as lowercase hex.
func (id SubjectID) String() string {
	return hex.EncodeToString(id[:])
}

// Compare orders byte-wise, like the underlying storage keys.
func (id SubjectID) Compare(other SubjectID) int {
	return bytes.Compare(id[:], other[:])
}

func (id SubjectID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *SubjectID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSubjectID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
