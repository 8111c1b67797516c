package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lexgraph/pkg/common"
)

// GenerateChunksHandler samples seed nodes of a label and stores a chunk
// for each.
func GenerateChunksHandler(c echo.Context) error {
	type generateChunksBody struct {
		SeedLabel     string `json:"seed_label" validate:"required"`
		Count         int    `json:"count" validate:"required,min=1,max=1000"`
		ForceRecreate bool   `json:"force_recreate"`
	}

	type generateChunksResponse struct {
		Message string              `json:"message"`
		Chunks  []common.GraphChunk `json:"chunks"`
	}

	data := new(generateChunksBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	chunks, err := service(c).GenerateChunks(c.Request().Context(), data.SeedLabel, data.Count, data.ForceRecreate)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusCreated, generateChunksResponse{
		Message: "Chunks generated successfully",
		Chunks:  chunks,
	})
}

// CreateChunkHandler stores the chunk around one seed node.
func CreateChunkHandler(c echo.Context) error {
	type createChunkBody struct {
		SeedNodeID string `json:"seed_node_id" validate:"required"`
		Force      bool   `json:"force"`
	}

	data := new(createChunkBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	chunk, err := service(c).CreateChunk(c.Request().Context(), data.SeedNodeID, data.Force)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, chunk)
}
