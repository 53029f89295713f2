// Package middleware turns bearer tokens into caller claims for the routes.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"signature-elite-server/apperror"
	"signature-elite-server/auth"
	"signature-elite-server/models"
	"signature-elite-server/utils"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/kataras/golog"
	"github.com/kataras/iris/v12"
)

const claimKey = "claim"

var ErrInvalidToken = errors.New("invalid token")

// RoleResolver looks up the stored role of a principal.
type RoleResolver interface {
	Role(ctx context.Context, email string) (models.Role, error)
}

// TokenClaims is the payload issued by the identity provider.
type TokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	keyfunc jwt.Keyfunc
	roles   RoleResolver
	log     *golog.Logger
}

// NewHMAC verifies HS256/384/512 tokens signed with secret.
func NewHMAC(secret []byte, roles RoleResolver, logger *golog.Logger) *Authenticator {
	kf := func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}
	return newAuthenticator(kf, roles, logger)
}

// NewJWKS verifies tokens against the provider's published key set, refreshing
// it in the background.
func NewJWKS(jwksURL string, roles RoleResolver, logger *golog.Logger) (*Authenticator, func(), error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			if logger != nil {
				logger.Warnf("jwks refresh: %v", err)
			}
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load jwks: %w", err)
	}
	return newAuthenticator(jwks.Keyfunc, roles, logger), jwks.EndBackground, nil
}

func newAuthenticator(kf jwt.Keyfunc, roles RoleResolver, logger *golog.Logger) *Authenticator {
	if logger == nil {
		logger = golog.Default
	}
	return &Authenticator{keyfunc: kf, roles: roles, log: logger}
}

// Verify checks the token signature and expiry and resolves the stored role.
// Principals without a stored user get an empty role.
func (a *Authenticator) Verify(ctx context.Context, token string) (auth.Claim, error) {
	var tc TokenClaims
	parsed, err := jwt.ParseWithClaims(token, &tc, a.keyfunc)
	if err != nil || !parsed.Valid {
		return auth.Claim{}, ErrInvalidToken
	}
	email := auth.NormalizeEmail(tc.Email)
	if email == "" {
		return auth.Claim{}, fmt.Errorf("%w: no email claim", ErrInvalidToken)
	}
	claim := auth.Claim{Email: email, Name: tc.Name}
	role, err := a.roles.Role(ctx, email)
	switch {
	case err == nil:
		claim.Role = role
	case errors.Is(err, apperror.ErrNotFound):
	default:
		return auth.Claim{}, err
	}
	return claim, nil
}

// Identify attaches the caller claim when an Authorization header is present.
// Requests without one continue as guests; malformed or invalid tokens are
// rejected.
func (a *Authenticator) Identify(ctx iris.Context) {
	header := ctx.GetHeader("Authorization")
	if header == "" {
		ctx.Next()
		return
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		utils.CreateError(ctx, http.StatusUnauthorized, "Invalid authorization header format")
		return
	}
	claim, err := a.Verify(ctx.Request().Context(), parts[1])
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			utils.CreateError(ctx, http.StatusUnauthorized, "Invalid token")
			return
		}
		a.log.Errorf("resolve caller role: %v", err)
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.Values().Set(claimKey, claim)
	ctx.Next()
}

// Require rejects guests.
func Require(ctx iris.Context) {
	if Claim(ctx).IsGuest() {
		utils.CreateError(ctx, http.StatusUnauthorized, "Authorization header is required")
		return
	}
	ctx.Next()
}

// Claim returns the caller attached by Identify, or a guest.
func Claim(ctx iris.Context) auth.Claim {
	if c, ok := ctx.Values().Get(claimKey).(auth.Claim); ok {
		return c
	}
	return auth.Claim{}
}
