package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/repository"
	"github.com/example/ai-detect/internal/usecase"
)

// MaxRequestBodySize bounds the JSON body of a classification request.
const MaxRequestBodySize = 1 << 20

// Service is the use case surface exposed over HTTP.
type Service interface {
	Classify(ctx context.Context, imageURL string) (string, detection.Result, error)
	GetResult(ctx context.Context, requestID string) (*repository.ClassificationLog, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
	Health() detection.Health
}

type classifyRequest struct {
	ImageURL string `json:"imageUrl"`
}

type classifyResponse struct {
	RequestID string `json:"request_id,omitempty"`
	detection.Result
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware
// guards the classification and history routes; metricsHandler is mounted on
// /metrics when non-nil.
func RegisterRoutes(router *gin.Engine, svc Service, authMiddleware gin.HandlerFunc, metricsHandler http.Handler) {
	router.Use(CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Health())
	})

	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	protected := router.Group("/")
	if authMiddleware != nil {
		protected.Use(authMiddleware)
	}

	protected.POST("/classify", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)

		var req classifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}

		requestID, result, err := svc.Classify(c.Request.Context(), req.ImageURL)
		status := http.StatusOK
		if err != nil {
			status = StatusFor(err)
		}
		c.JSON(status, classifyResponse{RequestID: requestID, Result: result})
	})

	protected.GET("/result/:id", func(c *gin.Context) {
		log, err := svc.GetResult(c.Request.Context(), c.Param("id"))
		switch {
		case errors.Is(err, usecase.ErrHistoryDisabled):
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
			return
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": log.RequestID,
			"image_url":  log.ImageURL,
			"strategy":   log.Strategy,
			"label":      log.Label,
			"confidence": log.Confidence,
			"source":     log.Source,
			"analysis":   log.Details,
			"error":      log.ErrorMessage,
			"latency_ms": log.LatencyMs,
			"created_at": log.CreatedAt,
		})
	})

	protected.GET("/stats", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if errors.Is(err, usecase.ErrHistoryDisabled) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}
