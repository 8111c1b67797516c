package server

import (
	"github.com/OFFIS-RIT/lexgraph/internal/metrics"
	"github.com/OFFIS-RIT/lexgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/lexgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Chunk routes
	apiRoutes.POST("/chunks/generate", routes.GenerateChunksHandler, middleware.RequirePermission("chunk.generate"))
	apiRoutes.POST("/chunks", routes.CreateChunkHandler, middleware.RequirePermission("chunk.create"))
	apiRoutes.GET("/chunks", routes.GetChunksHandler)
	apiRoutes.GET("/chunks/:id", routes.GetChunkHandler)
	apiRoutes.PATCH("/chunks/:id/assignee", routes.AssignChunkHandler)

	// Proposal routes
	apiRoutes.POST("/chunks/:id/proposals", routes.CreateProposalHandler, middleware.RequirePermission("proposal.create"))
	apiRoutes.GET("/chunks/:id/proposals", routes.GetChunkProposalsHandler)
	apiRoutes.GET("/proposals/:id", routes.GetProposalHandler)
	apiRoutes.POST("/proposals/:id/votes", routes.CastVoteHandler, middleware.RequirePermission("proposal.vote"))
	apiRoutes.GET("/proposals/:id/votes", routes.GetVotesHandler)
	apiRoutes.POST("/proposals/:id/apply", routes.ApplyProposalHandler, middleware.RequirePermission("proposal.apply"))
}
