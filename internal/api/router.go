package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/gymflow/internal/api/handler"
	"github.com/timmy/gymflow/internal/api/middleware"
)

// Handlers groups the endpoint handlers served by the router.
type Handlers struct {
	Health     *handler.HealthHandler
	Suggestion *handler.SuggestionHandler
	Search     *handler.SearchHandler
	Profile    *handler.ProfileHandler
	Admin      *handler.AdminHandler
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(h Handlers, mode string, cors middleware.CORSConfig) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(cors))

	r.GET("/health", h.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		classes := v1.Group("/classes")
		classes.GET("/recommendations/:memberId", h.Suggestion.GetRecommendations)
		classes.POST("/search/semantic", h.Search.SemanticSearch)
		classes.PATCH("/:classId", h.Profile.UpdateClass)

		v1.GET("/schedules/suggestions/:memberId", h.Suggestion.GetScheduleSuggestions)
		v1.PATCH("/members/:memberId/profile", h.Profile.UpdateMemberProfile)

		admin := v1.Group("/admin/cache")
		admin.POST("/warm", h.Admin.TriggerWarm)
		admin.GET("/warm", h.Admin.WarmStatus)
		admin.DELETE("/members/:memberId", h.Admin.InvalidateMember)
	}

	return r
}
