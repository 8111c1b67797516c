package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lexgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/lexgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/validation"
)

type errorResponse struct {
	Error string `json:"error"`
}

// serviceError maps workflow errors to a status code. Unknown errors are
// logged and hidden behind a 500.
func serviceError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, validation.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, validation.ErrInvalidInput),
		errors.Is(err, validation.ErrInvalidProposal),
		errors.Is(err, validation.ErrInvalidVote):
		status = http.StatusBadRequest
	case errors.Is(err, validation.ErrChunkExists),
		errors.Is(err, validation.ErrVotingClosed),
		errors.Is(err, validation.ErrNotApproved),
		errors.Is(err, leaselock.ErrBusy):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
		return c.JSON(status, errorResponse{Error: "Internal server error"})
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
}

func service(c echo.Context) *validation.Service {
	return c.(*middleware.AppContext).App.Validation
}

func currentUser(c echo.Context) *middleware.AppUser {
	return c.(*middleware.AppContext).User
}
