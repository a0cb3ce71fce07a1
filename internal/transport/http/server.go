package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/bootstrap"
	"docqa/internal/metrics"
	mysqlClient "docqa/internal/platform/mysql"
	rabbitmqClient "docqa/internal/platform/rabbitmq"
	redisClient "docqa/internal/platform/redis"
	"docqa/internal/transport/http/handler"
	"docqa/internal/transport/http/middleware"
)

const (
	actionUpload = "upload"
	actionQuery  = "query"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(middleware.AccessLog(app.Logger.Named("http")), gin.Recovery())

	deps := []handler.Dependency{
		{Name: "mysql", Ping: func(ctx context.Context) error { return mysqlClient.Ping(ctx, app.MySQL) }},
		{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx, app.Redis) }},
		{Name: "vector_store", Ping: app.VectorStore.Ping},
	}
	if app.MQConn != nil {
		deps = append(deps, handler.Dependency{
			Name: "rabbitmq",
			Ping: func(context.Context) error { return rabbitmqClient.Ping(app.MQConn) },
		})
	}
	healthHandler := handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, deps...)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(metrics.Handler(app.Registry)))

	authHandler := handler.NewAuthHandler(app.Auth)
	ragHandler := handler.NewRAGHandler(app.RAG, cfg.Limits.MaxFileSizeByte)
	configHandler := handler.NewConfigHandler(app.Tenants)

	auth := middleware.AuthJWT(cfg.Auth.JWTSecret)
	limitLog := app.Logger.Named("ratelimit")
	uploadLimit := middleware.RateLimit(app.Limiter, actionUpload, cfg.Limits.UploadsPerHour, time.Hour, limitLog)
	queryLimit := middleware.RateLimit(app.Limiter, actionQuery, cfg.Limits.QueriesPerHour, time.Hour, limitLog)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", auth, authHandler.Me)

	docs := v1.Group("/documents", auth)
	docs.GET("", ragHandler.ListDocuments)
	docs.POST("", uploadLimit, ragHandler.CreateDocument)
	docs.POST("/async", uploadLimit, ragHandler.CreateDocumentAsync)
	docs.POST("/upload", uploadLimit, ragHandler.UploadPDF)
	docs.DELETE("/:id", ragHandler.DeleteDocument)
	docs.DELETE("", ragHandler.DeleteAllDocuments)

	v1.POST("/ask", auth, queryLimit, ragHandler.Ask)

	configGroup := v1.Group("/config", auth)
	configGroup.GET("", configHandler.Get)
	configGroup.PUT("", configHandler.Update)

	return router
}
