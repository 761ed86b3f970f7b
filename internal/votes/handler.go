package votes

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
	"github.com/surapp/backend/pkg/response"
)

// Handler handles vote submission and statistics endpoints.
type Handler struct {
	validator  *Validator
	aggregator *Aggregator
	logger     *zap.Logger
}

// NewHandler creates a votes handler.
func NewHandler(validator *Validator, aggregator *Aggregator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{validator: validator, aggregator: aggregator, logger: logger}
}

// Submit handles POST /api/answer-voting/:id/. The body is a JSON array of
// {user, question, choice}.
func (h *Handler) Submit(c *gin.Context) {
	id, ok := votingID(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}
	var entries []models.Vote
	if err := json.Unmarshal(body, &entries); err != nil {
		response.FromError(c, h.logger, decodeError(err))
		return
	}
	out, err := h.validator.SubmitVotes(c.Request.Context(), id, entries)
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	response.Created(c, out)
}

// ListVotes handles GET /api/detail-statistic/:id/.
func (h *Handler) ListVotes(c *gin.Context) {
	id, ok := votingID(c)
	if !ok {
		return
	}
	out, err := h.aggregator.ListVotes(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	response.OK(c, out)
}

// Tally handles GET /api/poll-statistic/:id/.
func (h *Handler) Tally(c *gin.Context) {
	id, ok := votingID(c)
	if !ok {
		return
	}
	out, err := h.aggregator.Tally(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	response.OK(c, out)
}

func votingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return domainerrors.Invalid("", "expected a list of votes")
		}
		return domainerrors.Invalid(typeErr.Field, "expected "+typeErr.Type.String())
	}
	return domainerrors.Invalid("", "malformed JSON: "+err.Error())
}
