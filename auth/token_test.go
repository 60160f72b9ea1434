package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestResolveSubject_RoundTrip(t *testing.T) {
	req := require.New(t)
	subject := domain.NewSubjectID()

	token, err := GenerateToken(subject, testSecret, time.Hour)
	req.NoError(err)

	req.Equal(subject, ResolveSubject(token, testSecret))
}

func TestResolveSubject_InvalidTokensResolveToZero(t *testing.T) {
	req := require.New(t)
	subject := domain.NewSubjectID()

	valid, err := GenerateToken(subject, testSecret, time.Hour)
	req.NoError(err)
	expired, err := GenerateToken(subject, testSecret, -time.Hour)
	req.NoError(err)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"truncated":    valid[:len(valid)/2],
		"expired":      expired,
		"wrong secret": valid + "x",
	}
	for name, token := range cases {
		req.True(ResolveSubject(token, testSecret).IsZero(), name)
	}

	// Signed with a different key
	otherSecret := []byte("ffffffffffffffffffffffffffffffff")
	forged, err := GenerateToken(subject, otherSecret, time.Hour)
	req.NoError(err)
	req.True(ResolveSubject(forged, testSecret).IsZero())
}
