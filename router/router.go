package router

import (
	"Dyvine/config"
	"Dyvine/internal/handler"
	"Dyvine/internal/service"
	"Dyvine/utils"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InitRouter builds API routes.
func InitRouter(h *handler.Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.RequestIDMiddleware())
	r.Use(utils.RequestLogger(logger))
	r.Use(utils.CORSMiddleware(config.AppConfig.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(utils.AuthMiddleware())
	{
		users := api.Group("/users")
		{
			users.GET("/operations", h.ListOperations(service.ResourceUsers))
			users.GET("/operations/:operation_id", h.GetOperation(service.ResourceUsers))
			users.POST("/operations/:operation_id", h.OperationAction(service.ResourceUsers))
			users.GET("/:user_id", h.GetUser)
			users.POST("/:user_id/:action", h.UserAction)
		}

		posts := api.Group("/posts")
		{
			posts.GET("/operations", h.ListOperations(service.ResourcePosts))
			posts.GET("/operations/:operation_id", h.GetOperation(service.ResourcePosts))
			posts.POST("/operations/:operation_id", h.OperationAction(service.ResourcePosts))
			posts.GET("/users/:user_id/:action", h.ListUserPosts)
			posts.POST("/users/:user_id/:action", h.UserPostsAction)
			posts.GET("/:post_id", h.GetPost)
		}

		live := api.Group("/livestreams")
		{
			live.GET("/operations", h.ListOperations(service.ResourceLivestreams))
			live.GET("/operations/:operation_id", h.GetOperation(service.ResourceLivestreams))
			live.POST("/operations/:operation_id", h.OperationAction(service.ResourceLivestreams))
			live.POST("/users/:user_id/:action", h.UserStreamAction)
			live.POST("/:action", h.StreamAction)
		}
	}
	return r
}
