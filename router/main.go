package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/sahilchouksey/cohort-lms/handlers"
	admin_handlers "github.com/sahilchouksey/cohort-lms/handlers/admin"
	auth_handlers "github.com/sahilchouksey/cohort-lms/handlers/auth"
	batch_handlers "github.com/sahilchouksey/cohort-lms/handlers/batch"
	video_handlers "github.com/sahilchouksey/cohort-lms/handlers/video"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/services"
	"github.com/sahilchouksey/cohort-lms/utils/auth"
	"github.com/sahilchouksey/cohort-lms/utils/cache"
	"github.com/sahilchouksey/cohort-lms/utils/metrics"
	"github.com/sahilchouksey/cohort-lms/utils/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies carries everything the routes need
type Dependencies struct {
	Store          repository.Store
	DB             *gorm.DB          // audit log; nil disables auditing
	Cache          *cache.RedisCache // brute force protection; nil disables it
	JWT            *auth.JWTManager
	Membership     *services.MembershipService
	Roster         *services.RosterService
	Dedupe         *services.VideoDedupeService
	OpenReconciler admin_handlers.ReconcilerOpener
	Health         map[string]handlers.Pinger
	AllowedOrigins string
	RateLimit      int
	Log            *zap.Logger
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	// Initialize brute force protection
	var bruteForceProtection *middleware.BruteForceProtection
	if deps.Cache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(deps.Cache)
	} else {
		log.Warn("redis unavailable, brute force protection disabled")
	}

	authMiddleware := middleware.NewAuthMiddleware(deps.JWT, deps.Store)

	authHandler := auth_handlers.NewAuthHandler(deps.Store, deps.JWT, bruteForceProtection)
	batchHandler := batch_handlers.NewBatchHandler(deps.Store, deps.Membership, deps.Roster)
	videoHandler := video_handlers.NewVideoHandler(deps.Store, deps.Store)
	maintenanceHandler := admin_handlers.NewMaintenanceHandler(deps.Roster, deps.Dedupe, deps.OpenReconciler)
	healthHandler := handlers.NewHealthHandler(deps.Health)

	middleware.SetupSecurity(app, log.Named("http"), middleware.SecurityConfig{
		AllowedOrigins:    deps.AllowedOrigins,
		RateLimitRequests: deps.RateLimit,
		RateLimitWindow:   time.Minute,
	})

	// Public endpoints
	app.Get("/health", healthHandler.HandleCheckHealth)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes
	authGroup := api.Group("/auth")
	if bruteForceProtection != nil {
		authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}
	authGroup.Get("/me", authMiddleware.Required(), authHandler.Me)

	audit := func(action, resource string) fiber.Handler {
		return middleware.AdminAuditLog(deps.DB, log, action, resource)
	}

	// Batches (admin only)
	batches := api.Group("/batches", authMiddleware.RequireAdmin())
	batches.Get("/", batchHandler.ListBatches)
	batches.Get("/:id", batchHandler.GetBatch)
	batches.Post("/", audit("create_batch", "batches"), batchHandler.CreateBatch)
	batches.Delete("/:id", audit("delete_batch", "batches"), batchHandler.DeleteBatch)
	batches.Post("/:id/students", audit("assign_students", "batches"), batchHandler.AssignStudents)
	batches.Delete("/:id/students/:studentId", audit("remove_student", "batches"), batchHandler.RemoveStudent)
	batches.Post("/:id/roster/rebuild", audit("rebuild_roster", "batches"), batchHandler.RebuildRoster)

	// Classroom videos (admin only)
	videos := api.Group("/videos", authMiddleware.RequireAdmin())
	videos.Get("/", videoHandler.ListVideos)
	videos.Post("/", audit("create_video", "videos"), videoHandler.CreateVideo)

	// Maintenance (admin only)
	maintenance := api.Group("/admin/maintenance", authMiddleware.RequireAdmin())
	maintenance.Post("/rebuild-rosters", audit("rebuild_rosters", "batches"), maintenanceHandler.RebuildRosters)
	maintenance.Post("/dedupe-videos", audit("dedupe_videos", "videos"), maintenanceHandler.DedupeVideos)
	maintenance.Post("/reconcile-batches", audit("reconcile_batches", "batches"), maintenanceHandler.ReconcileBatches)
}
