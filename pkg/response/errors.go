package response

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
)

// FromError maps the domain error taxonomy onto HTTP responses. Anything
// outside the taxonomy is logged and reported as 500.
func FromError(c *gin.Context, logger *zap.Logger, err error) {
	var ve *domainerrors.ValidationError
	switch {
	case errors.As(err, &ve):
		ValidationFailed(c, "invalid request", ve.Fields)
	case errors.Is(err, domainerrors.ErrNotFound):
		NotFound(c, "not found")
	case errors.Is(err, domainerrors.ErrPermission):
		Forbidden(c, domainerrors.ErrPermission.Error())
	case errors.Is(err, domainerrors.ErrEmptyVoting):
		BadRequest(c, domainerrors.ErrEmptyVoting.Error())
	case errors.Is(err, domainerrors.ErrScopeViolation):
		BadRequest(c, err.Error())
	default:
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("voting_id", c.Param("id")),
			zap.Error(err),
		)
		Internal(c, "internal error")
	}
}
