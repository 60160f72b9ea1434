// Package auth resolves connection identities from bearer tokens.
// Session issuance lives elsewhere; this package only parses.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-relay/domain"
)

// Claims is the data carried inside a connection token. Subject is the
// 16-char hex form of the user's SubjectID.
type Claims struct {
	SubjectHex string `json:"sub_id"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a subject. Used by tooling and
// tests; the production issuer is an external collaborator.
func GenerateToken(subjectID domain.SubjectID, secret []byte, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		SubjectHex: subjectID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-relay",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ResolveSubject parses and validates a token string and returns the
// subject it names. Anything malformed, expired, or signed with the
// wrong key resolves to the zero SubjectID: an unauthenticated
// connection is a valid transient state, not an error.
func ResolveSubject(tokenString string, secret []byte) domain.SubjectID {
	if tokenString == "" {
		return domain.SubjectID{}
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return domain.SubjectID{}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return domain.SubjectID{}
	}
	subjectID, err := domain.ParseSubjectID(claims.SubjectHex)
	if err != nil {
		return domain.SubjectID{}
	}
	return subjectID
}
