// Command mock-upstream is a stand-in product API for local runs of the
// gateway. Point a services.yaml entry at it.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}
	name := os.Getenv("SERVICE_NAME")
	if name == "" {
		name = "weather"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.NoRoute(func(c *gin.Context) {
		log.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"forwarded":  c.GetHeader("X-Forwarded-For"),
			"request_id": c.GetHeader("X-Request-ID"),
		}).Info("received request")

		c.JSON(http.StatusOK, gin.H{
			"service":   name,
			"path":      c.Request.URL.Path,
			"query":     c.Request.URL.RawQuery,
			"timestamp": time.Now().Unix(),
		})
	})

	log.WithFields(log.Fields{"service": name, "port": port}).Info("mock upstream starting")
	if err := router.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
