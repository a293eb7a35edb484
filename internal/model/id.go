package model

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID generates a public job identifier. It is a ULID whose random part is
// drawn from crypto/rand, so ids sort by submission time but cannot be guessed.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewToken generates the internal artifact token: 128 random bits rendered as
// 32 lowercase hex characters. It shares no entropy with the public id.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
