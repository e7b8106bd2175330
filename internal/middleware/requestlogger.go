package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/metrics"
	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	logBatchSize     = 100
	logFlushInterval = 5 * time.Second
)

type RequestLogStore interface {
	CreateBatch(ctx context.Context, logs []*models.RequestLog) error
}

// RequestLogger records every request, including admission denials,
// through a buffered channel drained by one background worker
type RequestLogger struct {
	store RequestLogStore
	queue chan *models.RequestLog
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewRequestLogger(store RequestLogStore, bufferSize int) *RequestLogger {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &RequestLogger{
		store: store,
		queue: make(chan *models.RequestLog, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start background worker to batch insert logs
func (l *RequestLogger) Start() {
	go func() {
		defer close(l.done)

		batch := make([]*models.RequestLog, 0, logBatchSize)
		ticker := time.NewTicker(logFlushInterval)
		defer ticker.Stop()

		for {
			select {
			case entry := <-l.queue:
				batch = append(batch, entry)

				// Insert when batch is full
				if len(batch) >= logBatchSize {
					l.insertBatch(batch)
					batch = make([]*models.RequestLog, 0, logBatchSize)
				}
			case <-ticker.C:
				// Periodically insert remaining logs
				if len(batch) > 0 {
					l.insertBatch(batch)
					batch = make([]*models.RequestLog, 0, logBatchSize)
				}
			case <-l.stop:
				for {
					select {
					case entry := <-l.queue:
						batch = append(batch, entry)
					default:
						l.insertBatch(batch)
						return
					}
				}
			}
		}
	}()
}

// Flushes queued entries. Start must have been called.
func (l *RequestLogger) Stop() {
	l.once.Do(func() {
		close(l.stop)
	})
	<-l.done
}

func (l *RequestLogger) insertBatch(batch []*models.RequestLog) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.CreateBatch(ctx, batch); err != nil {
		// Log error but dont block
		log.WithError(err).WithField("count", len(batch)).Error("failed to insert request logs")
	}
}

// Logs all HTTP requests
func (l *RequestLogger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := &models.RequestLog{
			Timestamp:      start.UTC(),
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			StatusCode:     c.Writer.Status(),
			ResponseTimeMs: int(time.Since(start).Milliseconds()),
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			BackendServer:  c.Writer.Header().Get("X-Backend-Server"),
		}

		if userID, ok := UserID(c); ok {
			entry.UserID = &userID
		}
		if result, ok := AdmissionResult(c); ok {
			entry.Tier = string(result.Tier)
			entry.AdmissionReason = string(result.Reason)
		}

		// Send to channel for async processing
		select {
		case l.queue <- entry:
		default:
			// Channel full, skip logging to avoid blocking
			metrics.RequestLogsDropped.Inc()
		}
	}
}
