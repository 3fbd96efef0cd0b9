package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/clara-platform/clara-backend/internal/http/handlers"
	"github.com/clara-platform/clara-backend/internal/http/middleware"
)

type RouterConfig struct {
	ProjectHandler *handlers.ProjectHandler
	JobHandler     *handlers.JobHandler
	ContentHandler *handlers.ContentHandler
	ImageHandler   *handlers.ImageHandler
	LexiconHandler *handlers.LexiconHandler
	AudioHandler   *handlers.AudioHandler

	AllowOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware("clara-backend"))
	router.Use(middleware.AttachTraceContext())

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-Id", handlers.HeaderUserID},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Projects
		api.POST("/projects", cfg.ProjectHandler.Create)
		api.GET("/projects", cfg.ProjectHandler.List)
		api.GET("/projects/:id", cfg.ProjectHandler.Get)
		api.PATCH("/projects/:id", cfg.ProjectHandler.UpdateSettings)
		api.DELETE("/projects/:id", cfg.ProjectHandler.Destroy)
		api.PUT("/projects/:id/audio_preferences", cfg.ProjectHandler.SetAudioPreferences)
		api.GET("/projects/:id/costs", cfg.ProjectHandler.Costs)
		api.GET("/credit", cfg.ProjectHandler.Balance)

		// Jobs: every long operation enqueues and returns a report_id.
		api.POST("/projects/:id/annotate", cfg.JobHandler.Annotate)
		api.POST("/projects/:id/render", cfg.JobHandler.Render)
		api.POST("/projects/:id/images/style", cfg.JobHandler.ImagesStyle)
		api.POST("/projects/:id/images/elements/process", cfg.JobHandler.ImagesElements)
		api.POST("/projects/:id/images/pages/process", cfg.JobHandler.ImagesPages)
		api.POST("/projects/:id/export", cfg.JobHandler.Export)
		api.POST("/projects/:id/simple", cfg.JobHandler.SimpleAction)
		api.GET("/jobs/:id", cfg.JobHandler.Status)

		// Synchronous image set operations
		api.POST("/projects/:id/images/vote", cfg.ImageHandler.Vote)
		api.POST("/projects/:id/images/advice", cfg.ImageHandler.Advice)
		api.GET("/projects/:id/images/elements", cfg.ImageHandler.ListElements)
		api.POST("/projects/:id/images/elements", cfg.ImageHandler.AddElement)
		api.DELETE("/projects/:id/images/elements/:name", cfg.ImageHandler.DeleteElement)
		api.GET("/projects/:id/images/costs", cfg.ImageHandler.Costs)

		// Rendered artefacts and exports
		api.GET("/projects/:id/rendered/:kind/*filepath", cfg.ContentHandler.Rendered)
		api.GET("/projects/:id/export", cfg.ContentHandler.ExportDownload)

		// Human audio
		api.POST("/projects/:id/audio/zip", cfg.AudioHandler.ImportZip)
		api.POST("/projects/:id/audio/alignment", cfg.AudioHandler.ImportAlignment)

		// Phonetic lexicon
		api.POST("/lexicon/:language/plain", cfg.LexiconHandler.ImportPlain)
		api.POST("/lexicon/:language/aligned", cfg.LexiconHandler.ImportAligned)
		api.GET("/lexicon/:language/pending", cfg.LexiconHandler.Pending)
		api.POST("/lexicon/:language/approve", cfg.LexiconHandler.Approve)
		api.PUT("/lexicon/:language/orthography", cfg.LexiconHandler.SaveOrthography)
	}

	return router
}
