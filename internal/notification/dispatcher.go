package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/metrics"
	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	batchSize     = 100
	flushInterval = 2 * time.Second
	writeTimeout  = 5 * time.Second
)

type Repository interface {
	CreateBatch(ctx context.Context, notifications []*models.Notification) error
}

// Publisher fans stored notifications out to live listeners
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Dispatcher persists notifications in the background so that emitting one
// never blocks an admission decision. Entries are dropped when the buffer
// is full.
type Dispatcher struct {
	repo      Repository
	publisher Publisher
	queue     chan *models.Notification
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewDispatcher(repo Repository, publisher Publisher, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		queue:     make(chan *models.Notification, bufferSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func ChannelFor(userID uuid.UUID) string {
	return "notifications:" + userID.String()
}

func (d *Dispatcher) Notify(userID uuid.UUID, kind models.NotificationKind, payload map[string]any) {
	n := &models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Title:     kind.Title(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	select {
	case d.queue <- n:
	default:
		metrics.NotificationsDropped.Inc()
		log.WithFields(log.Fields{
			"user_id": userID,
			"kind":    kind,
		}).Warn("notification buffer full, dropping notification")
	}
}

func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Flushes whatever is queued and stops the background worker
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
	d.Start()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	batch := make([]*models.Notification, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case n := <-d.queue:
			batch = append(batch, n)
			if len(batch) >= batchSize {
				d.flush(batch)
				batch = make([]*models.Notification, 0, batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				d.flush(batch)
				batch = make([]*models.Notification, 0, batchSize)
			}
		case <-d.stop:
			for {
				select {
				case n := <-d.queue:
					batch = append(batch, n)
				default:
					d.flush(batch)
					return
				}
			}
		}
	}
}

func (d *Dispatcher) flush(batch []*models.Notification) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := d.repo.CreateBatch(ctx, batch); err != nil {
		log.WithError(err).WithField("count", len(batch)).Error("failed to store notifications")
		return
	}

	if d.publisher == nil {
		return
	}

	for _, n := range batch {
		message, err := json.Marshal(n)
		if err != nil {
			continue
		}
		if err := d.publisher.Publish(ctx, ChannelFor(n.UserID), message); err != nil {
			log.WithError(err).WithField("user_id", n.UserID).Debug("failed to publish notification")
		}
	}
}
