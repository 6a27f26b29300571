package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/scheduler"
)

const (
	streamMaxAge    = 7 * 24 * time.Hour
	ackTimeout      = 5 * time.Second
	maxPendingAcks  = 256
	eventIDHeader   = nats.MsgIdHdr
	eventTypeHeader = "Roster-Event"
)

// Event is the envelope every domain event is published in
type Event struct {
	ID        string          `json:"id"`
	Subject   string          `json:"subject"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NATSPublisher publishes domain events to a JetStream stream without
// waiting for acknowledgements
type NATSPublisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	wg     sync.WaitGroup
}

var _ scheduler.Publisher = (*NATSPublisher)(nil)

// Connect dials NATS and returns a JetStream context bounded by timeout
func Connect(url string, timeout time.Duration, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url,
		nats.Name("task-roster"),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.MaxWait(timeout), nats.PublishAsyncMaxPending(maxPendingAcks))
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates the event stream if it does not exist
func EnsureStream(js nats.JetStreamContext, name string, logger *zap.Logger) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		logger.Info("Using existing event stream", zap.String("name", name))
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{scheduler.SubjectWildcard},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
		MaxMsgs:  -1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	logger.Info("Created event stream", zap.String("name", name))
	return nil
}

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(js nats.JetStreamContext, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{
		js:     js,
		logger: logger.Named("publisher"),
	}
}

// Publish implements scheduler.Publisher. Failures are logged, never returned.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}

	envelope := Event{
		ID:        uuid.NewString(),
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}

	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set(eventIDHeader, envelope.ID)
	msg.Header.Set(eventTypeHeader, subject)

	future, err := p.js.PublishMsgAsync(msg)
	if err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("subject", subject),
			zap.String("event_id", envelope.ID),
			zap.Error(err))
		return
	}

	p.wg.Add(1)
	go p.awaitAck(subject, envelope.ID, future)
}

func (p *NATSPublisher) awaitAck(subject, id string, future nats.PubAckFuture) {
	defer p.wg.Done()

	select {
	case <-future.Ok():
		p.logger.Debug("Event published",
			zap.String("subject", subject),
			zap.String("event_id", id))
	case err := <-future.Err():
		p.logger.Error("Event was not acknowledged",
			zap.String("subject", subject),
			zap.String("event_id", id),
			zap.Error(err))
	case <-time.After(ackTimeout):
		p.logger.Warn("Timed out waiting for event acknowledgement",
			zap.String("subject", subject),
			zap.String("event_id", id))
	}
}

// Flush waits until every published event was acknowledged or ctx is done
func (p *NATSPublisher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogPublisher logs events instead of delivering them, for deployments
// without NATS
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a new LogPublisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

// Publish implements scheduler.Publisher
func (p *LogPublisher) Publish(_ context.Context, subject string, event any) {
	p.logger.Debug("Event", zap.String("subject", subject), zap.Any("event", event))
}
