package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/isdm-app/isdm-api/api/swagger"
	"github.com/isdm-app/isdm-api/internal/handler"
	"github.com/isdm-app/isdm-api/internal/middleware"
	"github.com/isdm-app/isdm-api/internal/service"
	"github.com/isdm-app/isdm-api/pkg/config"
	"github.com/isdm-app/isdm-api/pkg/logger"
	corsmiddleware "github.com/isdm-app/isdm-api/pkg/middleware/cors"
	reqidmiddleware "github.com/isdm-app/isdm-api/pkg/middleware/requestid"
)

// Dependencies are the collaborators the router exposes over HTTP.
type Dependencies struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *service.MetricsService
	Store      service.StudentStore
	Students   *service.StudentService
	Directory  *service.DirectoryService
	Exports    *service.ExportService
	ExportJobs *service.ExportJobService
	Verifier   service.TokenVerifier
	// Accounts is nil when the auth provider has no account management API.
	Accounts *service.AccountService
}

// NewRouter mounts probes, docs and the versioned API.
func NewRouter(d Dependencies) *gin.Engine {
	cfg := d.Config
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(d.Metrics))
	}

	metricsHandler := handler.NewMetricsHandler(d.Metrics, d.Directory)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())
	api.GET("/careers", handler.Careers)

	if d.Accounts != nil {
		accounts := handler.NewAccountHandler(d.Accounts)
		api.POST("/auth/signup", middleware.Audit(d.Logger, "signup", "account"), accounts.SignUp)
		api.POST("/auth/password-reset", accounts.PasswordReset)

		profile := api.Group("/profile", middleware.Auth(d.Verifier))
		profile.GET("", accounts.Profile)
		profile.PUT("", middleware.Audit(d.Logger, "update", "profile"), accounts.UpdateProfile)
	}

	students := handler.NewStudentHandler(d.Students, d.Directory, d.Exports)
	live := handler.NewLiveHandler(d.Store, d.Students, d.Metrics, d.Logger, handler.LiveConfig{
		WriteTimeout:   cfg.Live.WriteTimeout,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	group := api.Group("/students", middleware.Auth(d.Verifier))
	group.GET("", students.List)
	group.GET("/export", students.Export)
	group.GET("/live", live.Serve)
	group.GET("/:id", students.Get)
	group.POST("", middleware.Audit(d.Logger, "create", "student"), students.Create)
	group.PATCH("/:id", middleware.Audit(d.Logger, "update", "student"), students.Update)
	group.DELETE("/:id", middleware.Audit(d.Logger, "delete", "student"), students.Delete)

	if d.ExportJobs != nil {
		exports := handler.NewExportJobHandler(d.ExportJobs)
		api.GET("/exports/download/:token", exports.Download)

		jobsGroup := api.Group("/exports", middleware.Auth(d.Verifier))
		jobsGroup.POST("", middleware.Audit(d.Logger, "export", "student"), exports.Create)
		jobsGroup.GET("/:id", exports.Status)
	}

	return r
}
