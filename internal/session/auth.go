package session

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks a bound credential and reports whether admission should
// proceed. The actual token-issuing/verification backend is named in
// spec.md §1 as an out-of-scope external collaborator; Verifier is the seam
// the session endpoint depends on instead of a concrete identity provider.
type Verifier interface {
	Verify(token string) error
}

// JWTVerifier validates bearer/session tokens as HMAC-signed JWTs. It is one
// concrete Verifier implementation, grounded on the original source's
// auth::check_with_user (main.rs) and adapted to golang-jwt/jwt/v5, the
// library already present in the teacher repo's dependency stack.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier bound to a shared signing secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

func (v *JWTVerifier) Verify(token string) error {
	if token == "" {
		return fmt.Errorf("session: empty token")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return fmt.Errorf("session: parse token: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("session: token not valid")
	}
	return nil
}

// ExtractCredential pulls a bearer token out of a request using the three
// carriers spec.md §4.2 names, in priority order: a session-token query
// parameter (used by plain WebSocket clients that cannot set headers before
// upgrade), the Authorization bearer header, and a legacy API-key header for
// older clients.
func ExtractCredential(r *http.Request) string {
	if tok := r.URL.Query().Get("session_token"); tok != "" {
		return tok
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return key
	}
	return ""
}
