package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"findoc-backend/internal/analyses"
	"findoc-backend/internal/shared/auth"
	"findoc-backend/internal/shared/config"
	"findoc-backend/internal/shared/metrics"
	"findoc-backend/internal/shared/server/middleware"
	"findoc-backend/internal/shared/server/respond"
	"findoc-backend/internal/users"
)

// RouterDeps carries the wired handlers the router mounts.
type RouterDeps struct {
	Config          config.Config
	Signer          *auth.Signer
	UsersHandler    *users.Handler
	AnalysisHandler *analyses.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		metrics.HTTP(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	deps.UsersHandler.RegisterAuthRoutes(api.Group("/auth"))

	protected := api.Group("")
	protected.Use(middleware.Auth(deps.Signer))
	deps.UsersHandler.RegisterUserRoutes(protected.Group("/users"))
	deps.AnalysisHandler.RegisterRoutes(protected.Group("/analysis"))

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
