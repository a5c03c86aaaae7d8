package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"kbassist/internal/bootstrap"
	redisClient "kbassist/internal/platform/redis"
	"kbassist/internal/transport/http/handler"
	"kbassist/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), middleware.Recovery(app.Logger))
	router.MaxMultipartMemory = int64(app.Config.Storage.MaxUploadMB) << 20

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, healthChecks(app))
	router.GET("/healthz", healthHandler.Check)

	logger := app.Logger.Named("http")
	authHandler := handler.NewAuthHandler(app.Services.Auth, logger)
	knowledgeHandler := handler.NewKnowledgeHandler(app.Services.Knowledge, logger)
	documentHandler := handler.NewDocumentHandler(app.Services.Documents, logger)
	chatHandler := handler.NewChatHandler(app.Services.Chat, logger)
	searchHandler := handler.NewSearchHandler(app.Services.TagSearch, logger)
	authRequired := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	accounts := router.Group("/accounts")
	accounts.POST("/register/", authHandler.Register)
	accounts.POST("/login/", authHandler.Login)
	accounts.GET("/detail/", authRequired, authHandler.Detail)
	accounts.POST("/update/", authRequired, authHandler.Update)
	accounts.POST("/password/update/", authRequired, authHandler.ChangePassword)
	accounts.POST("/delete/", authRequired, authHandler.Delete)

	knowledge := router.Group("/knowledge", authRequired)
	knowledge.GET("/list/", knowledgeHandler.List)
	knowledge.POST("/create/", knowledgeHandler.Create)
	knowledge.DELETE("/delete/", knowledgeHandler.Delete)
	knowledge.GET("/documents/list/", documentHandler.List)
	knowledge.GET("/documents/detail/", documentHandler.Detail)
	knowledge.DELETE("/documents/delete/", documentHandler.Delete)
	knowledge.POST("/documents/upload/", documentHandler.Upload)
	knowledge.GET("/markdown/detail/", documentHandler.Chunk)
	knowledge.GET("/markdown/detail-by-document/", documentHandler.ChunkByDocument)
	knowledge.POST("/tag/search/", searchHandler.Tags)

	chat := router.Group("/chat", authRequired)
	chat.POST("/sessions/create/", chatHandler.CreateSession)
	chat.GET("/sessions/list/", chatHandler.ListSessions)
	chat.GET("/session/detail/", chatHandler.SessionDetail)
	chat.POST("/messages/send/", chatHandler.SendMessage)
	chat.POST("/sessions/delete/", chatHandler.DeleteSession)
	chat.POST("/sessions/rename/", chatHandler.RenameSession)
	chat.POST("/sessions/end/", chatHandler.EndSession)

	return router
}

func healthChecks(app *bootstrap.App) map[string]handler.HealthCheck {
	return map[string]handler.HealthCheck{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx, app.Redis)
		},
		"rabbitmq": func(context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("rabbitmq connection closed")
			}
			return nil
		},
	}
}
