// Package avatar resolves default profile pictures and stores uploaded ones.
package avatar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// Resolver returns a default avatar URL for a new account.
type Resolver interface {
	Resolve(ctx context.Context, email string) (string, error)
}

const gravatarBase = "https://www.gravatar.com/avatar/"

// Gravatar builds Gravatar image URLs. No request is made: Gravatar serves
// the fallback image itself when the address has no registered picture.
type Gravatar struct {
	// Default is the d= fallback style ("identicon", "retro", "mp", ...).
	Default string
	// Size in pixels; zero lets Gravatar choose.
	Size int
}

// Resolve hashes the trimmed, lowercased email with SHA-256, the form
// Gravatar accepts alongside the legacy MD5.
func (g Gravatar) Resolve(_ context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("avatar: email is required")
	}

	sum := sha256.Sum256([]byte(email))
	u := gravatarBase + hex.EncodeToString(sum[:])

	q := url.Values{}
	if g.Default != "" {
		q.Set("d", g.Default)
	}
	if g.Size > 0 {
		q.Set("s", strconv.Itoa(g.Size))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u, nil
}
