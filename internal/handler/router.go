package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/middleware"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
)

// Routes groups every API handler with the auth dependencies the routes need.
type Routes struct {
	Auth          *AuthHandler
	Documents     *DocumentHandler
	Payments      *PaymentHandler
	Requests      *RequestHandler
	Profiles      *ProfileHandler
	Notifications *NotificationHandler

	Tokens         middleware.TokenValidator
	Audit          middleware.AuditWriter
	Logger         *zap.Logger
	MaxUploadBytes int64
}

// Register mounts the API under group. Capability checks here reject early;
// services enforce the same rules.
func (r Routes) Register(group *gin.RouterGroup) {
	auth := middleware.JWT(r.Tokens)
	can := middleware.RequireCapability
	upload := middleware.UploadLimit(r.MaxUploadBytes)

	authGroup := group.Group("/auth")
	authGroup.POST("/register", r.Auth.Register)
	authGroup.POST("/login", r.Auth.Login)
	authGroup.POST("/refresh", r.Auth.Refresh)
	authGroup.POST("/logout", auth, r.Auth.Logout)
	authGroup.GET("/me", auth, r.Auth.Me)
	authGroup.PUT("/password", auth, r.Auth.ChangePassword)

	docs := group.Group("/documents", auth)
	docs.POST("", can(models.CapUploadOwnDocuments), upload, r.Documents.Upload)
	docs.GET("/me", r.Documents.Mine)
	docs.GET("/me/checklist", r.Documents.Checklist)
	docs.GET("", can(models.CapViewAllDocuments), r.Documents.List)
	docs.GET("/user/:userId", r.Documents.ForUser)
	docs.GET("/:id", r.Documents.Get)
	docs.GET("/:id/file", r.Documents.File)
	docs.PATCH("/:id/review", can(models.CapReviewDocuments), r.Documents.Review)
	docs.DELETE("/:id", r.Documents.Delete)

	// The download link carries its own signed token.
	group.GET("/payments/exports/download", r.Payments.DownloadExport)

	payments := group.Group("/payments", auth)
	payments.POST("", can(models.CapManagePayments), r.Payments.Record)
	payments.GET("/me", r.Payments.Mine)
	payments.GET("", can(models.CapManagePayments), r.Payments.List)
	payments.GET("/user/:userId", r.Payments.ForUser)
	payments.POST("/installments", can(models.CapManagePayments), r.Payments.CreateInstallment)
	payments.GET("/installments/me", r.Payments.MyInstallments)
	payments.GET("/installments/user/:userId", r.Payments.InstallmentsForUser)
	payments.POST("/installments/:id/support", upload, r.Payments.UploadSupport)
	payments.GET("/installments/:id/support", r.Payments.Support)
	payments.PATCH("/installments/:id/review", can(models.CapReviewPayments), r.Payments.ReviewInstallment)
	payments.POST("/exports", can(models.CapExportReports), r.Payments.CreateExport)
	payments.GET("/exports/:id", can(models.CapExportReports), r.Payments.ExportStatus)

	requests := group.Group("/requests", auth)
	requests.POST("", can(models.CapSubmitRequests), r.Requests.Submit)
	requests.GET("/me", r.Requests.Mine)
	requests.GET("", can(models.CapRespondRequests), r.Requests.List)
	requests.GET("/:id", r.Requests.Get)
	requests.PATCH("/:id/respond", can(models.CapRespondRequests), r.Requests.Respond)

	profiles := group.Group("/profiles", auth)
	profiles.GET("/me", r.Profiles.Me)
	profiles.PUT("/me", r.Profiles.UpdateMe)
	profiles.GET("/stages", r.Profiles.Stages)
	profiles.GET("", can(models.CapViewProfiles), r.Profiles.List)
	profiles.GET("/:userId", r.Profiles.Get)
	profiles.PATCH("/:userId/stage", can(models.CapAdvanceStage), r.Profiles.AdvanceStage)

	notifications := group.Group("/notifications", auth)
	notifications.GET("", r.Notifications.List)
	notifications.GET("/unread-count", r.Notifications.UnreadCount)
	notifications.PATCH("/read-all", r.Notifications.MarkAllRead)
	notifications.PATCH("/:id/read", r.Notifications.MarkRead)
	notifications.POST("/outbox/replay",
		can(models.CapMaintenance),
		middleware.Audit(r.Audit, r.Logger, models.AuditActionOutboxReplay, "notifications"),
		r.Notifications.Replay,
	)
}
