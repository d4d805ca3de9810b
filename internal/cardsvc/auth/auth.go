package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	errs "github.com/avvvet/idcard-services/internal/errors"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

const RoleAdmin = "admin"

// Identity is the caller a bearer credential resolved to.
type Identity struct {
	Subject string `json:"email"`
	Role    string `json:"role"`
}

// Authorizer verifies a bearer credential. The card service only depends on
// this capability, not on how tokens are issued.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (Identity, error)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// JWTAuthorizer issues and verifies HS256 tokens.
type JWTAuthorizer struct {
	tokenAuth *jwtauth.JWTAuth
	ttl       time.Duration
	now       func() time.Time
}

func NewJWTAuthorizer(secret string, ttl time.Duration) *JWTAuthorizer {
	return &JWTAuthorizer{
		tokenAuth: jwtauth.New("HS256", []byte(secret), nil),
		ttl:       ttl,
		now:       time.Now,
	}
}

// TokenAuth exposes the underlying jwtauth instance for chi Verifier middleware.
func (a *JWTAuthorizer) TokenAuth() *jwtauth.JWTAuth {
	return a.tokenAuth
}

func (a *JWTAuthorizer) Issue(id Identity) (string, time.Time, error) {
	expiresAt := a.now().Add(a.ttl)
	claims := map[string]interface{}{
		"sub":  id.Subject,
		"role": id.Role,
	}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiry(claims, expiresAt)

	_, tokenString, err := a.tokenAuth.Encode(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

func (a *JWTAuthorizer) Authorize(_ context.Context, tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, errs.Unauthorized("missing bearer token")
	}

	token, err := a.tokenAuth.Decode(tokenString)
	if err != nil || token == nil {
		return Identity{}, errs.Unauthorized("invalid token")
	}

	exp := token.Expiration()
	if exp.IsZero() || !a.now().Before(exp) {
		return Identity{}, errs.Unauthorized("token expired")
	}

	id := Identity{Subject: token.Subject()}
	if role, ok := token.Get("role"); ok {
		id.Role, _ = role.(string)
	}
	if id.Subject == "" || id.Role != RoleAdmin {
		return Identity{}, errs.Unauthorized("token does not grant admin access")
	}
	return id, nil
}

// AdminLogin checks a single configured admin credential.
type AdminLogin struct {
	email    string
	password string
	issuer   *JWTAuthorizer
}

func NewAdminLogin(email, password string, issuer *JWTAuthorizer) *AdminLogin {
	return &AdminLogin{email: email, password: password, issuer: issuer}
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      Identity  `json:"user"`
}

func (l *AdminLogin) Login(email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, errs.Validation("credentials", "email and password are required")
	}
	if l.email == "" || l.password == "" {
		log.Warn("login attempted but no admin credential is configured")
		return nil, errs.Unauthorized("invalid credentials")
	}

	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(email)), []byte(strings.ToLower(l.email))) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(l.password)) == 1
	if !emailOK || !passOK {
		return nil, errs.Unauthorized("invalid credentials")
	}

	id := Identity{Subject: l.email, Role: RoleAdmin}
	token, expiresAt, err := l.issuer.Issue(id)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "issue token", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: id}, nil
}

// RequireAuthorization rejects requests without a bearer token the authorizer
// accepts and stores the resolved identity in the request context.
func RequireAuthorization(a Authorizer, onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authorize(r.Context(), jwtauth.TokenFromHeader(r))
			if err != nil {
				onError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
