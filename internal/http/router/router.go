package router

import (
	"github.com/gin-gonic/gin"

	"tasklink.app/bridge/internal/http/handler/webhook"
)

func SetupRoutes(router *gin.Engine, webhookHandler *webhook.GitHubWebhookHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.POST("/webhooks/github", webhookHandler.HandleEvent)
}
