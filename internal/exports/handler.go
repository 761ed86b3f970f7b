package exports

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/surapp/backend/internal/middleware"
	"github.com/surapp/backend/pkg/queue"
	"github.com/surapp/backend/pkg/response"
	"github.com/surapp/backend/pkg/storage"
)

// Enqueuer schedules export jobs.
type Enqueuer interface {
	EnqueueExport(ctx context.Context, payload queue.ExportPayload) (*queue.Job, error)
}

// ObjectStore locates finished exports.
type ObjectStore interface {
	HeadObject(ctx context.Context, key string) error
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// EnqueueRequest is the optional body for POST /api/exports/:id/.
type EnqueueRequest struct {
	Format string `json:"format"`
}

// JobResponse describes a scheduled export.
type JobResponse struct {
	JobID    string `json:"job_id"`
	VotingID int64  `json:"voting_id"`
	Format   string `json:"format"`
	Status   string `json:"status"`
}

// Handler serves inline downloads and the async export endpoints.
type Handler struct {
	renderer *Renderer
	queue    Enqueuer
	objects  ObjectStore
	logger   *zap.Logger
}

// NewHandler creates an exports handler. q and objects may be nil, in which
// case the async endpoints answer 503.
func NewHandler(renderer *Renderer, q Enqueuer, objects ObjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{renderer: renderer, queue: q, objects: objects, logger: logger}
}

// VotingJSON handles GET /api/export-voting-json/:id/.
func (h *Handler) VotingJSON(c *gin.Context) {
	h.download(c, queue.FormatJSON)
}

// Votes handles GET /api/export-votes/:id/?format=xlsx|csv. The workbook is
// the default.
func (h *Handler) Votes(c *gin.Context) {
	format := c.DefaultQuery("format", queue.FormatXLSX)
	if format != queue.FormatXLSX && format != queue.FormatCSV {
		response.BadRequest(c, "format must be xlsx or csv")
		return
	}
	h.download(c, format)
}

func (h *Handler) download(c *gin.Context, format string) {
	id, ok := votingID(c)
	if !ok {
		return
	}
	f, err := h.renderer.Render(c.Request.Context(), id, format)
	if err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	c.Data(http.StatusOK, f.ContentType, f.Body)
}

// Enqueue handles POST /api/exports/:id/.
func (h *Handler) Enqueue(c *gin.Context) {
	if h.queue == nil || h.objects == nil {
		response.ServiceUnavailable(c, "exports are not configured")
		return
	}
	id, ok := votingID(c)
	if !ok {
		return
	}
	var req EnqueueRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	format, ok := parseFormat(c, req.Format)
	if !ok {
		return
	}
	if err := h.renderer.Exists(c.Request.Context(), id); err != nil {
		response.FromError(c, h.logger, err)
		return
	}
	job, err := h.queue.EnqueueExport(c.Request.Context(), queue.ExportPayload{
		VotingID:    id,
		Format:      format,
		RequestedBy: c.MustGet(middleware.ContextUserID).(int64),
	})
	if err != nil {
		h.logger.Error("enqueue export", zap.Int64("voting_id", id), zap.Error(err))
		response.Internal(c, "failed to schedule export")
		return
	}
	response.Accepted(c, JobResponse{JobID: job.ID, VotingID: id, Format: format, Status: "queued"})
}

// DownloadURL handles GET /api/exports/:id/:job_id/download-url?format=json|xlsx|csv.
func (h *Handler) DownloadURL(c *gin.Context) {
	if h.objects == nil {
		response.ServiceUnavailable(c, "exports are not configured")
		return
	}
	id, ok := votingID(c)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		response.BadRequest(c, "invalid job_id")
		return
	}
	format, ok := parseFormat(c, c.Query("format"))
	if !ok {
		return
	}
	key := storage.ExportKey(id, jobID.String(), format)
	if err := h.objects.HeadObject(c.Request.Context(), key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			response.NotFound(c, "export not ready")
			return
		}
		h.logger.Error("head export", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to look up export")
		return
	}
	url, err := h.objects.PresignedDownloadURL(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("presign export", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to sign download url")
		return
	}
	response.OK(c, gin.H{"url": url, "key": key})
}

func parseFormat(c *gin.Context, format string) (string, bool) {
	switch format {
	case "":
		return queue.FormatJSON, true
	case queue.FormatJSON, queue.FormatXLSX, queue.FormatCSV:
		return format, true
	default:
		response.BadRequest(c, "format must be json, xlsx or csv")
		return "", false
	}
}

func votingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}
