package votings

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/middleware"
	"github.com/surapp/backend/internal/models"
	"github.com/surapp/backend/pkg/response"
)

// SubmitRequest is the body for PATCH /api/submit/:id/.
type SubmitRequest struct {
	IsSubmit *bool `json:"is_submit"`
}

// Handler handles voting tree HTTP endpoints.
type Handler struct {
	engine *Engine
	logger *zap.Logger
}

// NewHandler creates a votings handler.
func NewHandler(engine *Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

// Create handles POST /create/voting/.
func (h *Handler) Create(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}
	tree, err := Decode(body)
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	out, err := h.engine.CreateVoting(c.Request.Context(), tree, currentUser(c))
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	response.Created(c, Encode(out))
}

// GetByID handles GET /api/response-voting/:id/. No authentication.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tree, err := h.engine.GetVotingTree(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	response.OK(c, Encode(tree))
}

// Replace handles PUT and PATCH /update/voting/:id/.
func (h *Handler) Replace(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}
	tree, err := DecodeUpdate(body)
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	out, err := h.engine.ReplaceVoting(c.Request.Context(), id, tree, currentUser(c))
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	response.OK(c, Encode(out))
}

// Delete handles DELETE /delete/voting/:id/.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.engine.DeleteVoting(c.Request.Context(), id, currentUser(c)); err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	response.NoContent(c)
}

// ListByAuthor handles GET /show_votings/:user_id/.
func (h *Handler) ListByAuthor(c *gin.Context) {
	authorID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	trees, err := h.engine.ListVotingsByAuthor(c.Request.Context(), authorID, currentUser(c))
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	response.OK(c, encodeAll(trees))
}

// PatchLogic handles PATCH /api/add_logic/:id/.
func (h *Handler) PatchLogic(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	// An empty body is an empty patch and echoes the tree.
	var req LogicPatch
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	out, err := h.engine.PatchLogicFields(c.Request.Context(), id, req, currentUser(c))
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	response.OK(c, Encode(out))
}

// PatchSubmit handles PATCH /api/submit/:id/.
func (h *Handler) PatchSubmit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.IsSubmit == nil {
		response.FromError(c, h.logger, domainerrors.Invalid("is_submit", "this field is required"))
		return
	}
	out, err := h.engine.PatchSubmitFlag(c.Request.Context(), id, *req.IsSubmit, currentUser(c))
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	response.OK(c, Encode(out))
}

func encodeAll(trees []*models.Tree) []VotingRepresentation {
	out := make([]VotingRepresentation, 0, len(trees))
	for _, t := range trees {
		out = append(out, Encode(t))
	}
	return out
}

func currentUser(c *gin.Context) int64 {
	return c.MustGet(middleware.ContextUserID).(int64)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
