package simserver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/history"
)

// ServerConfig holds the two listen ports: app (REST) and socket.
type ServerConfig struct {
	AppPort    int
	SocketPort int
}

// StartServers runs the REST and socket servers until SIGINT/SIGTERM, then
// shuts both down gracefully.
func StartServers(cfg ServerConfig, hub *Hub, book *OfferBook, logger *zap.Logger) {
	socketServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.SocketPort),
		Handler:      socketMux(hub),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	appServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AppPort),
		Handler:      appRouter(hub, book),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 2)
	go func() {
		logger.Info("socket server starting", zap.Int("port", cfg.SocketPort))
		if err := socketServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("socket server error: %w", err)
		}
	}()
	go func() {
		logger.Info("app server starting", zap.Int("port", cfg.AppPort))
		if err := appServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("app server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Stop()
	if err := socketServer.Shutdown(ctx); err != nil {
		logger.Warn("socket server shutdown", zap.Error(err))
	}
	if err := appServer.Shutdown(ctx); err != nil {
		logger.Warn("app server shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func socketMux(hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}
		hub.ServeWS(w, r, userID)
	})
	return mux
}

func appRouter(hub *Hub, book *OfferBook) http.Handler {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/chat/history/:requestId", func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.History(c.Param("requestId")))
	})

	router.GET("/requests/:requestId", func(c *gin.Context) {
		req, ok := book.Request(c.Param("requestId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		c.JSON(http.StatusOK, req)
	})

	router.GET("/requests/:requestId/offers", func(c *gin.Context) {
		c.JSON(http.StatusOK, book.Offers(c.Param("requestId")))
	})

	router.POST("/offers", func(c *gin.Context) {
		var draft history.OfferDraft
		if err := c.ShouldBindJSON(&draft); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if draft.RequestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requestId is required"})
			return
		}
		c.JSON(http.StatusCreated, book.AddOffer(draft))
	})

	router.GET("/monitor/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Stats())
	})

	return router
}
