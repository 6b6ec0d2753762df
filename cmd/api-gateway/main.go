package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/appointment-booking-api/api/swagger"
	"github.com/noah-isme/appointment-booking-api/internal/repository"
	"github.com/noah-isme/appointment-booking-api/internal/service"
	"github.com/noah-isme/appointment-booking-api/pkg/cache"
	"github.com/noah-isme/appointment-booking-api/pkg/config"
	"github.com/noah-isme/appointment-booking-api/pkg/database"
	"github.com/noah-isme/appointment-booking-api/pkg/events"
	"github.com/noah-isme/appointment-booking-api/pkg/jobs"
	"github.com/noah-isme/appointment-booking-api/pkg/logger"
	"github.com/noah-isme/appointment-booking-api/pkg/mailer"
	"github.com/noah-isme/appointment-booking-api/pkg/ratelimit"
	"github.com/noah-isme/appointment-booking-api/pkg/response"
)

// @title Appointment Booking API
// @version 1.0.0
// @description Role-based appointment booking between students and teachers
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
	if cfg.Booking.RetryAfterSecs > 0 {
		response.DefaultRetryAfterSeconds = cfg.Booking.RetryAfterSecs
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Migrations.AutoRun {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close() //nolint:errcheck
		}
	}

	app := buildApp(ctx, cfg, db, rdb, logr)
	defer app.shutdown()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// application holds the wired services shared by the router.
type application struct {
	db            *sqlx.DB
	metrics       *service.MetricsService
	auth          *service.AuthService
	identities    *service.IdentityService
	users         *service.UserService
	policy        *service.PolicyService
	availability  *service.AvailabilityService
	calendar      *service.CalendarService
	booking       *service.BookingService
	appointments  *service.AppointmentService
	teachers      *service.TeacherService
	reports       *service.ReportService
	notifications *service.NotificationService
	auditWriter   *repository.UserRepository

	queue     *jobs.Queue
	publisher events.Publisher
}

func (a *application) shutdown() {
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, rdb *redis.Client, logr *zap.Logger) *application {
	validate := service.NewValidator()
	metrics := service.NewMetricsService()
	opts := service.SchedulingOptions{
		Location:     cfg.Booking.Location(),
		SlotStep:     cfg.Booking.SlotStep,
		MaxRangeDays: cfg.Booking.MaxRangeDays,
	}

	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	var cacheRepo service.CacheRepository
	if rdb != nil {
		cacheRepo = repository.NewCacheRepository(rdb, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Booking.CacheTTL, logr, rdb != nil)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == "redis" && rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.LoginAttempts, cfg.RateLimit.LoginWindow, "login")
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.LoginAttempts, cfg.RateLimit.LoginWindow, nil)
	}

	authSvc := service.NewAuthService(userRepo, limiter, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		ResetTokenExpiry:   cfg.JWT.ResetExpiration,
		ResetURL:           cfg.Notifications.PasswordResetURL,
		Issuer:             cfg.JWT.Issuer,
	})

	mail := mailer.New(mailer.Config{
		APIKey:    cfg.Notifications.SendGridAPIKey,
		FromEmail: cfg.Notifications.FromEmail,
		FromName:  cfg.Notifications.AppName,
	}, logr)
	publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logr)
	notifications := service.NewNotificationService(notificationRepo, userRepo, mail, publisher, metrics, cfg.Notifications.AppName, logr)
	queue := jobs.NewQueue("notifications", notifications.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		JobTimeout: 30 * time.Second,
		Logger:     logr,
	})
	queue.Start(ctx)
	notifications.AttachQueue(queue)
	authSvc.AttachNotifier(notifications)

	policySvc := service.NewPolicyService(policyRepo, appointmentRepo, db, notifications, cacheSvc, userRepo, metrics, opts, validate, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, policySvc, appointmentRepo, db, notifications, cacheSvc, userRepo, metrics, opts, validate, logr)
	calendarSvc := service.NewCalendarService(policySvc, availabilityRepo, appointmentRepo, cacheSvc, opts, logr)
	bookingSvc := service.NewBookingService(teacherRepo, policySvc, availabilityRepo, appointmentRepo, db, notifications, cacheSvc, metrics, opts, logr)
	appointmentSvc := service.NewAppointmentService(appointmentRepo, teacherRepo, db, notifications, cacheSvc, userRepo, metrics, opts, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, userRepo, availabilityRepo, appointmentRepo, authSvc, db, notifications, cacheSvc, metrics, opts, validate, logr)

	reports := service.NewReportService(appointmentSvc, userRepo, userRepo, opts, service.ReportServiceConfig{
		Enabled: cfg.Reports.Enabled,
		MaxRows: cfg.Reports.MaxRows,
	}, logr)

	return &application{
		db:            db,
		metrics:       metrics,
		auth:          authSvc,
		identities:    service.NewIdentityService(userRepo, logr),
		users:         service.NewUserService(userRepo, validate, logr),
		policy:        policySvc,
		availability:  availabilitySvc,
		calendar:      calendarSvc,
		booking:       bookingSvc,
		appointments:  appointmentSvc,
		teachers:      teacherSvc,
		reports:       reports,
		notifications: notifications,
		auditWriter:   userRepo,
		queue:         queue,
		publisher:     publisher,
	}
}
