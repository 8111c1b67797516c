package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/validation"
)

// GetChunksHandler lists chunks, optionally filtered by status and
// assignee. assigned_to=me resolves to the caller.
func GetChunksHandler(c echo.Context) error {
	type getChunksQuery struct {
		Status     string `query:"status" validate:"omitempty,oneof=pending validated"`
		AssignedTo string `query:"assigned_to"`
		Limit      int    `query:"limit" validate:"min=0,max=1000"`
		Offset     int    `query:"offset" validate:"min=0"`
	}

	type getChunksResponse struct {
		Chunks []common.GraphChunk `json:"chunks"`
	}

	data := new(getChunksQuery)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}
	if data.AssignedTo == "me" {
		data.AssignedTo = currentUser(c).UserID
	}

	chunks, err := service(c).ListChunks(c.Request().Context(), validation.ChunkFilter{
		Status:     common.ChunkStatus(data.Status),
		AssignedTo: data.AssignedTo,
		Limit:      data.Limit,
		Offset:     data.Offset,
	})
	if err != nil {
		return serviceError(c, err)
	}
	if chunks == nil {
		chunks = []common.GraphChunk{}
	}
	return c.JSON(http.StatusOK, getChunksResponse{Chunks: chunks})
}

func GetChunkHandler(c echo.Context) error {
	chunk, err := service(c).GetChunk(c.Request().Context(), c.Param("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, chunk)
}
