package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
)

// apiKeyAuth checks the "Authorization: Bearer <key>" header against `hash`.
func apiKeyAuth(hash string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator: func(key string, _ echo.Context) (bool, error) {
			return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil, nil
		},
	})
}
