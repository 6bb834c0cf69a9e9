// Package events publishes circuit breaker transitions to downstream sinks.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
)

// CircuitEvent is the wire form of a breaker transition.
type CircuitEvent struct {
	Upstream string    `json:"upstream"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	At       time.Time `json:"at"`
}

func FromTransition(t resilient.Transition) CircuitEvent {
	return CircuitEvent{Upstream: t.Upstream, From: string(t.From), To: string(t.To), At: t.At.UTC()}
}

// Publisher must not block: it is called from inside the breaker's state change hook.
type Publisher interface {
	Publish(t resilient.Transition)
}

// MultiPublisher fans out transitions to multiple publishers.
type MultiPublisher struct {
	publishers []Publisher
}

func NewMultiPublisher(ps ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: ps}
}

func (m *MultiPublisher) Publish(t resilient.Transition) {
	for _, p := range m.publishers {
		p.Publish(t)
	}
}

// LogPublisher records transitions as structured log lines.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(t resilient.Transition) {
	p.logger.Info("circuit transition",
		slog.String("upstream", t.Upstream),
		slog.String("from", string(t.From)),
		slog.String("to", string(t.To)),
		slog.Time("at", t.At),
	)
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ErrClosed is returned by Run once Close has been called.
var ErrClosed = errors.New("publisher closed")

// KafkaPublisher queues transitions and writes them to a topic from a
// background goroutine. A full queue drops the event.
type KafkaPublisher struct {
	writer       kafkaMessageWriter
	queue        chan CircuitEvent
	logger       *slog.Logger
	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithQueueSize(size int) KafkaOption {
	return func(p *KafkaPublisher) {
		if size > 0 {
			p.queue = make(chan CircuitEvent, size)
		}
	}
}

// NewKafkaPublisher creates a publisher for topic.
// brokers can be a comma-separated list of host:port.
func NewKafkaPublisher(brokers, topic string, opts ...KafkaOption) (*KafkaPublisher, error) {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka: topic is required")
	}
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}, opts...), nil
}

// NewKafkaPublisherWith is only for tests to inject a fake writer.
func NewKafkaPublisherWith(w kafkaMessageWriter, opts ...KafkaOption) *KafkaPublisher {
	return newKafkaPublisher(w, opts...)
}

func newKafkaPublisher(w kafkaMessageWriter, opts ...KafkaOption) *KafkaPublisher {
	p := &KafkaPublisher{
		writer:       w,
		queue:        make(chan CircuitEvent, 64),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		writeTimeout: 5 * time.Second,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *KafkaPublisher) Publish(t resilient.Transition) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- FromTransition(t):
	default:
		p.logger.Warn("circuit event dropped", slog.String("upstream", t.Upstream), slog.String("to", string(t.To)))
	}
}

// Run drains the queue until ctx is cancelled or Close is called.
// On cancellation, events still queued are written within one write timeout.
func (p *KafkaPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case <-p.done:
			return ErrClosed
		case ev := <-p.queue:
			if ctx.Err() != nil {
				p.drain(ev)
				return ctx.Err()
			}
			p.send(ctx, ev)
		}
	}
}

func (p *KafkaPublisher) drain(pending ...CircuitEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	for _, ev := range pending {
		p.send(ctx, ev)
	}
	for ctx.Err() == nil {
		select {
		case ev := <-p.queue:
			p.send(ctx, ev)
		default:
			return
		}
	}
}

func (p *KafkaPublisher) send(ctx context.Context, ev CircuitEvent) {
	if err := p.write(ctx, ev); err != nil {
		p.logger.Warn("circuit event publish failed",
			slog.String("upstream", ev.Upstream),
			slog.String("error", err.Error()),
		)
	}
}

func (p *KafkaPublisher) write(ctx context.Context, ev CircuitEvent) error {
	b, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Upstream), Value: b, Time: ev.At})
}

func (p *KafkaPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.writer.Close()
	})
	return err
}
