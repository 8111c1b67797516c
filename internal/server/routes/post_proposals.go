package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/validation"
)

// CreateProposalHandler stores a change proposal for a chunk. The caller
// becomes its author.
func CreateProposalHandler(c echo.Context) error {
	type createProposalBody struct {
		ChunkID      string           `param:"id" validate:"required"`
		ProposalType string           `json:"proposal_type" validate:"required,oneof=add modify delete"`
		OriginalData common.ChangeSet `json:"original_data"`
		ProposedData common.ChangeSet `json:"proposed_data"`
	}

	data := new(createProposalBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	p, err := service(c).CreateProposal(c.Request().Context(), validation.ProposalInput{
		ChunkID:      data.ChunkID,
		ProposalType: common.ProposalType(data.ProposalType),
		OriginalData: data.OriginalData,
		ProposedData: data.ProposedData,
		CreatedBy:    currentUser(c).UserID,
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// CastVoteHandler records the caller's vote and returns the new tally.
// Voting again replaces the earlier vote while the proposal is pending.
func CastVoteHandler(c echo.Context) error {
	type castVoteBody struct {
		ProposalID string `param:"id" validate:"required"`
		Vote       string `json:"vote" validate:"required,oneof=approve reject"`
	}

	data := new(castVoteBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	tally, err := service(c).CastVote(c.Request().Context(), data.ProposalID, currentUser(c).UserID, common.VoteValue(data.Vote))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, tally)
}

// ApplyProposalHandler writes an approved proposal to the graph. A graph
// failure still answers 200 with the proposal in status failed.
func ApplyProposalHandler(c echo.Context) error {
	p, err := service(c).ApplyProposal(c.Request().Context(), c.Param("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
