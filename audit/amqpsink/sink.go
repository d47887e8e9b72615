// Package amqpsink publishes goGuard audit events as JSON to a RabbitMQ
// topic exchange. The routing key is "<prefix>.<event_type>", so consumers
// can bind to e.g. "goguard.audit.account_locked" or "goguard.audit.#".
package amqpsink

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp091.Channel the sink uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

type Config struct {
	Exchange      string
	RoutingPrefix string
	// PublishTimeout bounds one publish. Default 5s.
	PublishTimeout time.Duration
}

// Sink is a goGuard.AuditSink. Publish failures are logged and counted;
// they never reach the engine.
type Sink struct {
	pub    Publisher
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	failed uint64

	conn    *amqp091.Connection
	channel *amqp091.Channel
}

var _ goGuard.AuditSink = (*Sink)(nil)

// New wraps an existing publisher. The exchange must already exist.
func New(pub Publisher, cfg Config, logger *slog.Logger) *Sink {
	if cfg.Exchange == "" {
		cfg.Exchange = "goguard.audit"
	}
	if cfg.RoutingPrefix == "" {
		cfg.RoutingPrefix = "goguard.audit"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{pub: pub, cfg: cfg, logger: logger}
}

// Dial connects to amqpURL, declares a durable topic exchange and returns
// a Sink that owns the connection.
func Dial(amqpURL string, cfg Config, logger *slog.Logger) (*Sink, error) {
	clean, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.Dial(clean)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	s := New(ch, cfg, logger)
	if err := ch.ExchangeDeclare(s.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	s.conn, s.channel = conn, ch
	return s, nil
}

func (s *Sink) Emit(ctx context.Context, event goGuard.AuditEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.fail(event, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PublishTimeout)
	defer cancel()

	err = s.pub.PublishWithContext(ctx, s.cfg.Exchange, s.routingKey(event), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    event.Timestamp,
		Type:         event.EventType,
		Body:         body,
	})
	if err != nil {
		s.fail(event, err)
	}
}

func (s *Sink) routingKey(event goGuard.AuditEvent) string {
	return s.cfg.RoutingPrefix + "." + event.EventType
}

func (s *Sink) fail(event goGuard.AuditEvent, err error) {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
	s.logger.Warn("audit publish failed", "event_type", event.EventType, "error", err)
}

// Failed returns the number of events that could not be published.
func (s *Sink) Failed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Close releases a connection opened by Dial.
func (s *Sink) Close() error {
	var errs []error
	if s.channel != nil {
		errs = append(errs, s.channel.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
