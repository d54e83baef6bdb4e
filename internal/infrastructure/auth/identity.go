package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"isuite-server/chat-api/internal/utils/platformerrors"
)

// User is the authenticated caller identity extracted from token claims.
type User struct {
	ID    string
	Name  string
	Email string
}

// devUser is the identity handed out when auth is disabled so local
// development works without a token.
var devUser = User{
	ID:    "dev-user",
	Name:  "Developer",
	Email: "dev@localhost",
}

// CurrentUser resolves the caller from the validated token stored by the
// middleware. When auth is disabled it returns a fixed development user.
func (v *Validator) CurrentUser(c *gin.Context) (User, error) {
	if v == nil || !v.cfg.AuthEnabled {
		return devUser, nil
	}

	raw, exists := c.Get("auth_token")
	if !exists {
		return User{}, platformerrors.NewError(
			c.Request.Context(),
			platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized,
			"no authenticated user in request",
			nil,
			"6e9f0a1b-2c3d-4e5f-6a7b-8c9d0e1f2a3b",
		)
	}

	token, ok := raw.(*jwt.Token)
	if !ok {
		return User{}, platformerrors.NewError(
			c.Request.Context(),
			platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized,
			"malformed authentication context",
			nil,
			"7f0a1b2c-3d4e-5f6a-7b8c-9d0e1f2a3b4c",
		)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return User{}, platformerrors.NewError(
			c.Request.Context(),
			platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized,
			"malformed token claims",
			nil,
			"8a1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5e",
		)
	}

	user := User{}
	if sub, ok := claims["sub"].(string); ok {
		user.ID = sub
	}
	if name, ok := claims["name"].(string); ok {
		user.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}

	if user.ID == "" {
		return User{}, platformerrors.NewError(
			c.Request.Context(),
			platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized,
			"token missing subject claim",
			nil,
			"9b2c3d4e-5f6a-7b8c-9d0e-1f2a3b4c5d6f",
		)
	}

	return user, nil
}

// RawToken returns the bearer token the middleware validated, for
// forwarding to upstream services. Empty when auth is disabled.
func RawToken(c *gin.Context) string {
	raw, exists := c.Get("auth_token_raw")
	if !exists {
		return ""
	}
	token, _ := raw.(string)
	return token
}
