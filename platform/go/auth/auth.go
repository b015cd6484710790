package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxOperator ctxKey = "ORBITER_OPERATOR"

// Role names carried in token claims.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// Operator identifies the authenticated console user.
type Operator struct {
	ID    string
	Email string
	Role  string
}

// OperatorFromContext returns the operator stored by the middleware.
func OperatorFromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(ctxOperator).(*Operator)
	return op, ok
}

// WithOperator stores the operator on the context. Exposed for tests.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, ctxOperator, op)
}

// Verifier validates HS256 bearer tokens minted by the platform.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier constructs a Verifier. Secret must be non-empty.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Middleware parses the Authorization header, validates the token, and stores
// the operator identity on the request context. OPTIONS requests pass through
// so CORS preflights never need credentials.
func (v *Verifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			op, err := v.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

// Verify checks signature, expiry and issuer, and extracts the operator claims.
func (v *Verifier) Verify(raw string) (*Operator, error) {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("token missing sub claim")
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleOperator
	}

	return &Operator{ID: sub, Email: email, Role: role}, nil
}

// RequireRole rejects requests whose operator lacks the given role.
// Admins pass every check.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := OperatorFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			if op.Role != role && op.Role != RoleAdmin {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MintToken signs an HS256 token for the operator. Used by the CLI to issue
// short-lived credentials for local and CI environments.
func MintToken(secret, issuer string, op Operator, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("auth: signing secret is required")
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":   op.ID,
		"email": op.Email,
		"role":  op.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
