package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lexgraph/pkg/common"
)

func GetChunkProposalsHandler(c echo.Context) error {
	type getProposalsResponse struct {
		Proposals []common.Proposal `json:"proposals"`
	}

	ctx := c.Request().Context()
	chunkID := c.Param("id")
	if _, err := service(c).GetChunk(ctx, chunkID); err != nil {
		return serviceError(c, err)
	}
	proposals, err := service(c).ListProposals(ctx, chunkID)
	if err != nil {
		return serviceError(c, err)
	}
	if proposals == nil {
		proposals = []common.Proposal{}
	}
	return c.JSON(http.StatusOK, getProposalsResponse{Proposals: proposals})
}

// GetVotesHandler returns the tally and the individual votes of a proposal.
func GetVotesHandler(c echo.Context) error {
	type getVotesResponse struct {
		Tally *common.Tally `json:"tally"`
		Votes []common.Vote `json:"votes"`
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	tally, err := service(c).GetTally(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	votes, err := service(c).ListVotes(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	if votes == nil {
		votes = []common.Vote{}
	}
	return c.JSON(http.StatusOK, getVotesResponse{Tally: tally, Votes: votes})
}

func GetProposalHandler(c echo.Context) error {
	p, err := service(c).GetProposal(c.Request().Context(), c.Param("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
