package main

import (
	"context"
	"errors"
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
	"go.uber.org/zap"

	_ "github.com/noah-isme/office-appointment-api/api/swagger"
	"github.com/noah-isme/office-appointment-api/internal/handler"
	"github.com/noah-isme/office-appointment-api/internal/middleware"
	"github.com/noah-isme/office-appointment-api/internal/models"
	"github.com/noah-isme/office-appointment-api/internal/repository"
	"github.com/noah-isme/office-appointment-api/internal/scheduling"
	"github.com/noah-isme/office-appointment-api/internal/service"
	"github.com/noah-isme/office-appointment-api/pkg/cache"
	"github.com/noah-isme/office-appointment-api/pkg/clock"
	"github.com/noah-isme/office-appointment-api/pkg/config"
	"github.com/noah-isme/office-appointment-api/pkg/database"
	"github.com/noah-isme/office-appointment-api/pkg/jobs"
	"github.com/noah-isme/office-appointment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/office-appointment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/office-appointment-api/pkg/middleware/requestid"
)

// @title Office Appointment API
// @version 1.0.0
// @description Appointment booking with busy-day blocking and automatic rescheduling.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	rulesCfg, err := scheduling.ConfigFromStrings(cfg.Scheduling.Timezone, cfg.Scheduling.Cutoff, cfg.Scheduling.BreakStart, cfg.Scheduling.BreakEnd)
	if err != nil {
		return fmt.Errorf("scheduling config: %w", err)
	}
	rules := scheduling.NewRules(rulesCfg, clock.System())

	db, err := database.NewPostgres(ctx, cfg.Database, cfg.Scheduling.Timezone)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	loc := rules.Location()
	appointmentRepo := repository.NewAppointmentRepository(db, loc)
	busyDayRepo := repository.NewBusyDayRepository(db, loc)
	busySlotRepo := repository.NewBusyTimeSlotRepository(db, loc)
	unitRepo := repository.NewUnitRepository(db)
	userRepo := repository.NewUserRepository(db)
	tx := repository.NewTransactor(db)

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, busy-day cache disabled", "error", err)
		} else {
			redisRepo := repository.NewCacheRepository(client, logr)
			defer redisRepo.Close()
			cacheRepo = redisRepo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cacheRepo != nil)
	// Busy days may have been edited while the service was down.
	if err := cacheSvc.Invalidate(ctx, service.BusyDayCachePattern); err != nil {
		logr.Sugar().Warnw("busy-day cache reset failed", "error", err)
	}

	notifier := service.NewNotificationService(service.NewLogSender(logr), userRepo, logr, cfg.Notifications.Enabled)
	queue := jobs.NewQueue("notifications", notifier.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	queue.Start(context.Background())
	defer queue.Stop()
	notifier.UseDispatcher(queue)

	validate := validator.New()
	blockingSvc := service.NewBlockingService(busyDayRepo, busySlotRepo, appointmentRepo, tx, cacheSvc, rules, notifier, metricsSvc, validate, logr,
		service.BlockingServiceConfig{
			HorizonDays:  cfg.Scheduling.RescheduleHorizonDays,
			SkipWeekends: cfg.Scheduling.RescheduleSkipWeekend,
			CacheTTL:     cfg.Cache.TTL,
		})
	appointmentSvc := service.NewAppointmentService(appointmentRepo, unitRepo, userRepo, blockingSvc, tx, rules, notifier, metricsSvc, validate, logr)
	exportSvc := service.NewExportService(appointmentSvc, service.ExportConfig{}, logr, nil, nil)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metricsSvc != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	routes := routeDeps{
		tokens:       service.NewTokenService(cfg.JWT.Secret),
		audit:        userRepo,
		logger:       logr,
		appointments: handler.NewAppointmentHandler(appointmentSvc, exportSvc),
		busyDays:     handler.NewBusyDayHandler(blockingSvc),
		busySlots:    handler.NewBusySlotHandler(blockingSvc),
		metrics:      metricsHandler,
	}
	registerRoutes(r.Group(cfg.APIPrefix), routes)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type routeDeps struct {
	tokens       middleware.TokenValidator
	audit        middleware.AuditWriter
	logger       *zap.Logger
	appointments *handler.AppointmentHandler
	busyDays     *handler.BusyDayHandler
	busySlots    *handler.BusySlotHandler
	metrics      *handler.MetricsHandler
}

func registerRoutes(api *gin.RouterGroup, d routeDeps) {
	authenticated := middleware.JWT(d.tokens)
	staff := middleware.RequireRoles(models.RoleStaff, models.RoleAdmin)
	admin := middleware.RequireRoles(models.RoleAdmin)
	audit := func(action, resource, idParam string) gin.HandlerFunc {
		return middleware.Audit(d.audit, d.logger, action, resource, idParam)
	}

	appointments := api.Group("/appointments")
	appointments.POST("", middleware.OptionalJWT(d.tokens), d.appointments.Create)
	managed := appointments.Group("", authenticated, staff)
	managed.GET("", d.appointments.List)
	managed.GET("/export", d.appointments.Export)
	managed.GET("/:id", d.appointments.Get)
	managed.PATCH("/:id", audit(models.AuditActionAppointmentEdit, "appointment", "id"), d.appointments.Update)
	managed.DELETE("/:id", audit(models.AuditActionSoftDelete, "appointment", "id"), d.appointments.Delete)
	managed.DELETE("/:id/purge", admin, audit(models.AuditActionPurge, "appointment", "id"), d.appointments.Purge)

	busyDays := api.Group("/busy-days")
	busyDays.GET("", d.busyDays.List)
	busyDays.GET("/:date", d.busyDays.Check)
	busyDays.POST("", authenticated, admin, audit(models.AuditActionBlockDay, "busy_day", ""), d.busyDays.Block)
	busyDays.DELETE("/:date", authenticated, admin, audit(models.AuditActionUnblockDay, "busy_day", "date"), d.busyDays.Unblock)

	busySlots := api.Group("/busy-slots")
	busySlots.GET("", d.busySlots.List)
	busySlots.GET("/check", d.busySlots.Check)
	busySlots.POST("", authenticated, admin, audit(models.AuditActionBlockSlot, "busy_time_slot", ""), d.busySlots.Block)
	busySlots.DELETE("/:id", authenticated, admin, audit(models.AuditActionUnblockSlot, "busy_time_slot", "id"), d.busySlots.Unblock)

	api.GET("/metrics/summary", authenticated, admin, d.metrics.Summary)
}
