package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Blackbeard96/summer-games/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOKENS
// ══════════════════════════════════════════════════════════════════════════════

// Role is the caller's role in a class.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTeacher, RoleStudent:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Claims are the JWT claims. Subject is the student or teacher id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService.
func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for subject.
func (t *TokenService) Issue(subject string, role Role) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	now := t.now()
	expires := now.Add(t.ttl)
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies a token and returns its claims.
func (t *TokenService) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	if _, err := ParseRole(string(claims.Role)); err != nil {
		return nil, err
	}
	return claims, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TEACHER LOGIN
// ══════════════════════════════════════════════════════════════════════════════

// PassphraseLogin checks the teacher passphrase against a bcrypt hash.
type PassphraseLogin struct {
	teacherID string
	hash      []byte
}

// NewPassphraseLogin returns nil when hash is empty, which disables the
// login endpoint.
func NewPassphraseLogin(teacherID, hash string) *PassphraseLogin {
	if hash == "" {
		return nil
	}
	return &PassphraseLogin{teacherID: teacherID, hash: []byte(hash)}
}

// Verify returns the teacher id when passphrase matches.
func (p *PassphraseLogin) Verify(passphrase string) (string, bool) {
	if err := bcrypt.CompareHashAndPassword(p.hash, []byte(passphrase)); err != nil {
		return "", false
	}
	return p.teacherID, true
}

// HashPassphrase produces a hash for AUTH_TEACHER_PASSPHRASE_HASH.
func HashPassphrase(passphrase string) (string, error) {
	if len(passphrase) < 8 {
		return "", errors.New("passphrase must be at least 8 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

type claimsKey struct{}

// Authenticate requires a valid bearer token.
func Authenticate(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				handlers.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			claims, err := tokens.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				handlers.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// RequireRole allows only the given roles. Must run after Authenticate.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := ClaimsFrom(r.Context())
			if c != nil {
				for _, role := range roles {
					if c.Role == role {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			handlers.WriteError(w, r, http.StatusForbidden, "forbidden", "insufficient role")
		})
	}
}

// ClaimsFrom returns the authenticated claims, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// canActFor reports whether the caller is a teacher or the student itself.
func canActFor(ctx context.Context, studentID string) bool {
	c := ClaimsFrom(ctx)
	if c == nil {
		return false
	}
	return c.Role == RoleTeacher || c.Subject == studentID
}
