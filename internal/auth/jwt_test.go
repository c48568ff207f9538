package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// newTestTokenService uses a fixed, known secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_ValidSecret(t *testing.T) {
	_, err := NewTokenService("this-is-16-chars")
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error for valid secret: %v", err)
	}
}

// =========================================================================
// GENERATE TESTS
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-123", ScopeAccess)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	// header.payload.signature
	if dots := strings.Count(token, "."); dots != 2 {
		t.Errorf("Generate() token doesn't look like a JWT (expected 2 dots, got %d)", dots)
	}
}

func TestGenerate_SameSubjectTwiceDiffers(t *testing.T) {
	ts := newTestTokenService(t)

	token1, _ := ts.Generate("user-aaa", ScopeRefresh)
	token2, _ := ts.Generate("user-aaa", ScopeRefresh)

	if token1 == token2 {
		t.Error("Generate() returned identical tokens; jti should make them unique")
	}
}

func TestGenerate_UnknownScope(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Generate("user-1", Scope("admin")); err == nil {
		t.Error("Generate() should reject an unknown scope")
	}
}

// =========================================================================
// VALIDATE TESTS
// =========================================================================

func TestValidate_RoundTripPerScope(t *testing.T) {
	ts := newTestTokenService(t)

	for _, scope := range []Scope{ScopeAccess, ScopeRefresh, ScopeEmail} {
		t.Run(string(scope), func(t *testing.T) {
			token, err := ts.Generate("subject-1", scope)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			got, err := ts.Validate(token, scope)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if got != "subject-1" {
				t.Errorf("Validate() subject = %q, want %q", got, "subject-1")
			}
		})
	}
}

func TestValidate_ScopesAreNotInterchangeable(t *testing.T) {
	ts := newTestTokenService(t)

	refresh, _ := ts.Generate("user-1", ScopeRefresh)
	if _, err := ts.Validate(refresh, ScopeAccess); !errors.Is(err, ErrWrongScope) {
		t.Errorf("Validate(refresh as access) error = %v, want ErrWrongScope", err)
	}

	access, _ := ts.Generate("user-1", ScopeAccess)
	if _, err := ts.Validate(access, ScopeRefresh); !errors.Is(err, ErrWrongScope) {
		t.Errorf("Validate(access as refresh) error = %v, want ErrWrongScope", err)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("user-123", ScopeAccess, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	if _, err := ts.Validate(token, ScopeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Validate() error = %v, want ErrTokenExpired", err)
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate("user-123", ScopeAccess)
	tampered := token[:len(token)-2] + "xx"

	if _, err := ts.Validate(tampered, ScopeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1 := newTestTokenService(t)
	ts2, _ := NewTokenService("a-completely-different-secret")

	token, _ := ts1.Generate("user-123", ScopeAccess)
	if _, err := ts2.Validate(token, ScopeAccess); err == nil {
		t.Fatal("Validate() should reject a token signed with a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, in := range []string{"", "not.a.jwt", "abc"} {
		if _, err := ts.Validate(in, ScopeAccess); err == nil {
			t.Errorf("Validate(%q) should fail", in)
		}
	}
}
