// Package httpapi assembles the gin router from the feature handlers.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/surapp/backend/internal/auth"
	"github.com/surapp/backend/internal/exports"
	"github.com/surapp/backend/internal/middleware"
	"github.com/surapp/backend/internal/votes"
	"github.com/surapp/backend/internal/votings"
	"github.com/surapp/backend/pkg/response"
)

// Deps are the handlers and services the router mounts.
type Deps struct {
	JWT         *auth.JWTService
	Denylist    auth.Denylist
	Auth        *auth.Handler
	Votings     *votings.Handler
	Votes       *votes.Handler
	Exports     *exports.Handler
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter builds the HTTP routes. Paths keep their trailing slashes because
// existing clients call them that way.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(d.CORSOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public
	router.POST("/api/register/", d.Auth.Register)
	router.POST("/api/login/", d.Auth.Login)
	router.GET("/api/response-voting/:id/", d.Votings.GetByID)
	router.POST("/api/answer-voting/:id/", d.Votes.Submit)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(d.JWT, d.Denylist, logger))
	{
		api.POST("/api/logout/", d.Auth.Logout)
		api.GET("/api/token/validate/", d.Auth.ValidateToken)

		// Votings
		api.POST("/create/voting/", d.Votings.Create)
		api.PUT("/update/voting/:id/", d.Votings.Replace)
		api.PATCH("/update/voting/:id/", d.Votings.Replace)
		api.DELETE("/delete/voting/:id/", d.Votings.Delete)
		api.GET("/show_votings/:user_id/", d.Votings.ListByAuthor)
		api.PATCH("/api/add_logic/:id/", d.Votings.PatchLogic)
		api.PATCH("/api/submit/:id/", d.Votings.PatchSubmit)

		// Statistics
		api.GET("/api/detail-statistic/:id/", d.Votes.ListVotes)
		api.GET("/api/poll-statistic/:id/", d.Votes.Tally)

		// Exports
		api.GET("/api/export-voting-json/:id/", d.Exports.VotingJSON)
		api.GET("/api/export-votes/:id/", d.Exports.Votes)
		api.POST("/api/exports/:id/", d.Exports.Enqueue)
		api.GET("/api/exports/:id/:job_id/download-url", d.Exports.DownloadURL)
	}
	return router
}
