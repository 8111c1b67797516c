package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lexgraph/internal/server/middleware"
)

// AssignChunkHandler sets the reviewer of a chunk. Reviewers without the
// chunk.assign permission may only claim or release a chunk for themselves.
func AssignChunkHandler(c echo.Context) error {
	type assignChunkBody struct {
		ID       string `param:"id" validate:"required"`
		Assignee string `json:"assignee"`
	}

	data := new(assignChunkBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	ctx := c.Request().Context()
	user := currentUser(c)
	if data.Assignee != user.UserID && !middleware.HasPermission(user, "chunk.assign") {
		current, err := service(c).GetChunk(ctx, data.ID)
		if err != nil {
			return serviceError(c, err)
		}
		if data.Assignee != "" || current.AssignedTo != user.UserID {
			return c.JSON(http.StatusForbidden, errorResponse{Error: "Forbidden: missing permission chunk.assign"})
		}
	}

	chunk, err := service(c).AssignChunk(ctx, data.ID, data.Assignee)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, chunk)
}
