package middleware

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lexgraph/pkg/store"
	"github.com/OFFIS-RIT/lexgraph/pkg/validation"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

type App struct {
	Validation *validation.Service
	Storage    store.GraphStorage
	// Keyfunc verifies bearer tokens. Without it only the master key is
	// accepted.
	Keyfunc        jwt.Keyfunc
	MasterAPIKey   string
	MasterUserID   string
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
