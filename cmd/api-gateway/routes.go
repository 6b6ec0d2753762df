package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/handler"
	internalmiddleware "github.com/noah-isme/appointment-booking-api/internal/middleware"
	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/pkg/config"
	"github.com/noah-isme/appointment-booking-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/appointment-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/appointment-booking-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(app.metrics, "/metrics", "/health"))
	r.Use(internalmiddleware.WithResponseMeta())

	authHandler := handler.NewAuthHandler(app.auth)
	policyHandler := handler.NewPolicyHandler(app.policy)
	availabilityHandler := handler.NewAvailabilityHandler(app.availability)
	teacherHandler := handler.NewTeacherHandler(app.teachers, app.calendar)
	appointmentHandler := handler.NewAppointmentHandler(app.booking, app.appointments, app.reports)
	notificationHandler := handler.NewNotificationHandler(app.notifications)
	userHandler := handler.NewUserHandler(app.users)
	metricsHandler := handler.NewMetricsHandler(app.metrics, app.db)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)

	api.GET("/policy", policyHandler.Get)
	api.GET("/teachers", teacherHandler.List)
	api.GET("/teachers/:id", teacherHandler.Get)
	api.GET("/teachers/:id/calendar", teacherHandler.Calendar)
	api.GET("/teachers/:id/slots", teacherHandler.Slots)
	api.GET("/public/teachers/:id/schedule", teacherHandler.PublicSchedule)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(app.auth, app.identities))

	secured.POST("/auth/logout", authHandler.Logout)
	secured.POST("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/auth/me", authHandler.Me)

	secured.GET("/notifications", notificationHandler.List)
	secured.POST("/notifications/:id/read", notificationHandler.MarkRead)

	mountAppointmentRoutes(secured, appointmentHandler)
	mountTeacherRoutes(secured, availabilityHandler, app.auditWriter)

	admin := secured.Group("/admin")
	admin.Use(internalmiddleware.RequireRoles(models.RoleAdmin))
	admin.PUT("/policy", policyHandler.Set)
	admin.POST("/teachers/invite", teacherHandler.Invite)
	admin.DELETE("/teachers/:id", teacherHandler.Remove)
	admin.GET("/users", userHandler.List)
	admin.GET("/users/:id", userHandler.Get)
	admin.PATCH("/users/:id/approval", userHandler.SetApproval)
	admin.GET("/appointments/export", appointmentHandler.Export)
	admin.GET("/metrics", metricsHandler.Summary)

	return r
}

// mountAppointmentRoutes registers the appointment endpoints. Booking carries no
// role middleware; the engine checks role and approval in its own order.
func mountAppointmentRoutes(secured *gin.RouterGroup, h *handler.AppointmentHandler) {
	appointments := secured.Group("/appointments")
	appointments.GET("", h.List)
	appointments.GET("/:id", h.Get)
	appointments.POST("", h.Book)
	appointments.POST("/:id/approve", internalmiddleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), h.Approve)
	appointments.POST("/:id/reject", internalmiddleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), h.Reject)
	appointments.POST("/:id/cancel", h.Cancel)
}

// mountTeacherRoutes registers the teacher self-service endpoints. Admins may
// also delete any busy block.
func mountTeacherRoutes(secured *gin.RouterGroup, h *handler.AvailabilityHandler, audit internalmiddleware.AuditWriter) {
	secured.DELETE("/teacher/busy/:id",
		internalmiddleware.RequireRoles(models.RoleTeacher, models.RoleAdmin),
		internalmiddleware.RequireApproved(),
		internalmiddleware.Audit(audit, models.AuditActionBusyDelete, "teacher_busy_blocks"),
		h.DeleteBusy,
	)

	teacher := secured.Group("/teacher")
	teacher.Use(internalmiddleware.RequireRoles(models.RoleTeacher), internalmiddleware.RequireApproved())
	teacher.GET("/availability", h.Get)
	teacher.PUT("/availability", h.Set)
	teacher.GET("/busy", h.ListBusy)
	teacher.POST("/busy", h.AddBusy)
}
