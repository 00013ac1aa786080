package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"docuvault/internal/audit"
	"docuvault/internal/bootstrap"
	"docuvault/internal/cache"
	"docuvault/internal/chat"
	"docuvault/internal/chunk"
	"docuvault/internal/document"
	"docuvault/internal/feedback"
	"docuvault/internal/identity"
	"docuvault/internal/platform/rabbitmq"
	"docuvault/internal/rag"
	"docuvault/internal/repository"
	"docuvault/internal/transport/http/handler"
	"docuvault/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.DB)
	docRepo := repository.NewDocumentRepository(app.DB)
	chunkRepo := repository.NewChunkRepository(app.DB)
	sessionRepo := repository.NewSessionRepository(app.DB)
	messageRepo := repository.NewMessageRepository(app.DB)
	feedbackRepo := repository.NewFeedbackRepository(app.DB)
	auditRepo := repository.NewAuditRepository(app.DB)

	auditor := audit.NewRecorder(auditRepo, app.Logger)
	resolver := identity.NewResolver(userRepo, app.Config.Security.EmailHashKey, app.Logger)

	var historyCache *cache.HistoryCache
	if app.Redis != nil {
		historyCache = cache.NewHistoryCache(
			app.Redis,
			time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}
	var publisher feedback.Publisher
	if app.MQConn != nil {
		publisher = rabbitmq.NewPublisher(app.MQConn, app.Config.RabbitMQ.FeedbackQueue)
	}

	docService := document.NewService(
		docRepo,
		chunkRepo,
		app.Blobs,
		app.Keys,
		app.Cipher,
		app.LLM,
		auditor,
		app.Logger,
		document.Config{
			MaxFileSize:    app.Config.MaxFileSizeBytes(),
			ChunkOptions:   chunk.Options{},
			EmbeddingModel: app.Config.LLM.EmbeddingModel,
		},
	)
	ragEngine := rag.NewEngine(chunkRepo, app.Keys, app.Cipher, app.LLM, app.Logger, app.Config.LLM.TopK)
	chatStore := chat.NewStore(sessionRepo, messageRepo, app.Keys, app.Cipher, historyCache, auditor, app.Logger)
	feedbackService := feedback.NewService(feedbackRepo, messageRepo, app.Keys, app.Cipher, publisher, auditor, app.Logger)

	documentHandler := handler.NewDocumentHandler(docService, app.Logger)
	auditHandler := handler.NewAuditHandler(auditRepo)
	chatHandler := handler.NewChatHandler(chatStore, ragEngine, auditor, app.Logger)
	feedbackHandler := handler.NewFeedbackHandler(feedbackService, app.Logger)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Identity(resolver, userRepo, app.Config.Auth.Mode, app.Config.Auth.IdentityJWTSecret, app.Logger))

	docGroup := v1.Group("/documents")
	docGroup.POST("", documentHandler.Upload)
	docGroup.GET("", documentHandler.List)
	docGroup.DELETE("/:id", documentHandler.Delete)

	chatGroup := v1.Group("/chat")
	chatGroup.POST("/ask", chatHandler.Ask)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.GET("/history", chatHandler.History)

	v1.POST("/feedback", feedbackHandler.Submit)
	v1.GET("/audit", auditHandler.List)

	return router
}
