package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/deptconnect/deptconnect-api/api/swagger"
	"github.com/deptconnect/deptconnect-api/internal/handler"
	"github.com/deptconnect/deptconnect-api/internal/middleware"
	"github.com/deptconnect/deptconnect-api/internal/models"
	"github.com/deptconnect/deptconnect-api/internal/repository"
	"github.com/deptconnect/deptconnect-api/internal/service"
	"github.com/deptconnect/deptconnect-api/pkg/cache"
	"github.com/deptconnect/deptconnect-api/pkg/config"
	"github.com/deptconnect/deptconnect-api/pkg/database"
	"github.com/deptconnect/deptconnect-api/pkg/hasher"
	"github.com/deptconnect/deptconnect-api/pkg/jobs"
	"github.com/deptconnect/deptconnect-api/pkg/logger"
	"github.com/deptconnect/deptconnect-api/pkg/mailer"
	corsmiddleware "github.com/deptconnect/deptconnect-api/pkg/middleware/cors"
	reqidmiddleware "github.com/deptconnect/deptconnect-api/pkg/middleware/requestid"
	"github.com/deptconnect/deptconnect-api/pkg/storage"
)

// @title DeptConnect API
// @version 1.0.0
// @description Departmental platform for announcements, assignments and account recovery
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare upload storage", "error", err)
	}
	urlSigner := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)

	// Background mail dispatch.
	smtp := mailer.NewSMTP(cfg.SMTP)
	mailQueue := jobs.NewQueue("mail", func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(service.MailPayload)
		if !ok {
			logr.Sugar().Errorw("mail job has unexpected payload", "job_id", job.ID)
			return nil
		}
		return smtp.Send(payload.To, payload.Subject, payload.Body)
	}, jobs.QueueConfig{
		Workers:    cfg.MailQueue.Workers,
		MaxRetries: cfg.MailQueue.MaxRetries,
		RetryDelay: cfg.MailQueue.RetryDelay,
		Logger:     logr,
	})
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	mailQueue.Start(rootCtx)
	defer mailQueue.Stop()

	// Services.
	validate := validator.New()
	bcrypt := hasher.NewBcrypt(0)
	metricsSvc := service.NewMetricsService()
	lifecycleSvc := service.NewLifecycleService(cfg.Lifecycle.ArchiveRetention)

	authSvc := service.NewAuthService(userRepo, tokenRepo, mailQueue, bcrypt, validate, logr, service.AuthConfig{
		Secret:            cfg.JWT.Secret,
		SessionExpiry:     cfg.JWT.Expiration,
		ActionTokenExpiry: cfg.JWT.ActionTokenExpiry,
		Issuer:            cfg.JWT.Issuer,
		OTPLength:         cfg.OTP.Length,
		OTPTTL:            cfg.OTP.TTL,
		MinResponseTime:   cfg.OTP.MinResponseTime,
	}).WithMetrics(metricsSvc)
	userSvc := service.NewUserService(userRepo, validate, logr)

	announcementSvc := service.NewAnnouncementService(announcementRepo, lifecycleSvc, cacheOrNil(cacheRepo), validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, lifecycleSvc, cacheOrNil(cacheRepo), validate, logr)

	// Ownership registry for the authorization guard. The resource set is
	// closed; an unregistered resource panics here at boot.
	registry := middleware.NewResourceRegistry().WithMetrics(metricsSvc)
	registry.Register(models.ResourceAnnouncement, announcementRepo)
	registry.Register(models.ResourceAssignment, assignmentRepo)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc, userSvc)
	userHandler := handler.NewUserHandler(userSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	uploadHandler := handler.NewUploadHandler(uploadStore, urlSigner, cfg.Uploads.MaxFileSizeBytes, cfg.Uploads.AllowedMIMEs)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register/lecturer", authHandler.RegisterLecturer)
		auth.POST("/register/student", authHandler.RegisterStudent)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/verify-otp/:id", authHandler.VerifyOTP)
		auth.POST("/reset-password/:id", middleware.ActionToken(authSvc), authHandler.ResetPassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	uploads := api.Group("/uploads")
	{
		uploads.POST("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleLecturer, models.RoleCourseAdviser, models.RoleStudentAdmin), uploadHandler.Upload)
		uploads.GET("/:token", uploadHandler.Download)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleLecturer, models.RoleCourseAdviser), userHandler.List)
		users.PATCH("/me", userHandler.UpdateProfile)
		users.GET("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleLecturer, models.RoleCourseAdviser, models.RoleStudentAdmin), userHandler.Get)
		users.PATCH("/:id/status", middleware.RequireRoles(models.RoleAdmin, models.RoleCourseAdviser), userHandler.SetStatus)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)
	}

	publisherRoles := []models.UserRole{models.RoleLecturer, models.RoleCourseAdviser, models.RoleStudentAdmin}
	adminOverride := []models.UserRole{models.RoleAdmin}
	ownedByPublisher := middleware.GuardOptions{Roles: publisherRoles, Own: true, Override: adminOverride}

	announcements := api.Group("/announcements", middleware.JWT(authSvc))
	{
		announcements.GET("", announcementHandler.List)
		announcements.GET("/:id", announcementHandler.Get)
		announcements.POST("", middleware.RequireRoles(append(publisherRoles, models.RoleAdmin)...), announcementHandler.Create)
		announcements.PATCH("/:id", middleware.Guard(registry, models.ResourceAnnouncement, ownedByPublisher), announcementHandler.Update)
		announcements.POST("/:id/archive", middleware.Guard(registry, models.ResourceAnnouncement, ownedByPublisher), announcementHandler.Archive)
		announcements.POST("/:id/unarchive", middleware.Guard(registry, models.ResourceAnnouncement, ownedByPublisher), announcementHandler.Unarchive)
		announcements.DELETE("/:id", middleware.Guard(registry, models.ResourceAnnouncement, ownedByPublisher), announcementHandler.Delete)
	}

	assignments := api.Group("/assignments", middleware.JWT(authSvc))
	{
		assignments.GET("", assignmentHandler.List)
		assignments.GET("/:id", assignmentHandler.Get)
		assignments.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleLecturer, models.RoleCourseAdviser), assignmentHandler.Create)
		assignments.PATCH("/:id", middleware.Guard(registry, models.ResourceAssignment, ownedByPublisher), assignmentHandler.Update)
		assignments.POST("/:id/archive", middleware.Guard(registry, models.ResourceAssignment, ownedByPublisher), assignmentHandler.Archive)
		assignments.POST("/:id/unarchive", middleware.Guard(registry, models.ResourceAssignment, ownedByPublisher), assignmentHandler.Unarchive)
		assignments.DELETE("/:id", middleware.Guard(registry, models.ResourceAssignment, ownedByPublisher), assignmentHandler.Delete)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// cacheOrNil keeps the typed-nil *CacheRepository from masquerading as a
// non-nil interface inside the services.
func cacheOrNil(repo *repository.CacheRepository) repository.CacheInvalidator {
	if repo == nil {
		return nil
	}
	return repo
}
