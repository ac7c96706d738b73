package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/pkg/log"
)

// Subscriber consumes gateway callbacks from a NATS subject and feeds
// them through the dispatcher. Replicas share a queue group so each
// delivery lands on exactly one process
type Subscriber struct {
	dispatcher *Dispatcher
	url        string
	subject    string
	conn       *nats.Conn
	sub        *nats.Subscription
}

const (
	natsClientName    = "parley"
	natsQueueGroup    = "parley"
	natsReconnectWait = 2 * time.Second

	// dispatchTimeout bounds one event's trip through the engine,
	// including the store round-trips
	dispatchTimeout = 15 * time.Second
)

var ErrSubscriberDisabled = errors.New("no NATS URL configured")

// NewSubscriber wires a subscriber from configuration. It stays
// disabled, and Start refuses to run, when no URL is configured
func NewSubscriber(d *Dispatcher, cfg *config.Config) *Subscriber {
	return &Subscriber{
		dispatcher: d,
		url:        cfg.NATSURL,
		subject:    cfg.NATSSubject,
	}
}

// Enabled reports whether a NATS URL was configured
func (s *Subscriber) Enabled() bool {
	return s.url != ""
}

// Start connects and subscribes. The connection retries forever; losing
// the broker must not take the engine down with it
func (s *Subscriber) Start() error {
	if !s.Enabled() {
		return ErrSubscriberDisabled
	}

	conn, err := nats.Connect(s.url,
		nats.Name(natsClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	sub, err := conn.QueueSubscribe(s.subject, natsQueueGroup, s.handle)
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}

	s.conn = conn
	s.sub = sub
	slog.Info("NATS subscriber started",
		slog.String("url", s.url),
		slog.String("subject", s.subject))
	return nil
}

// Stop drains the subscription so handlers already running finish
// before the connection closes
func (s *Subscriber) Stop() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
	s.conn = nil
	s.sub = nil
}

// handle decodes and dispatches one delivery. Undecodable messages are
// dropped; redelivery would just fail the same way. Responses travel to
// the user over the notification topic, not back through NATS
func (s *Subscriber) handle(m *nats.Msg) {
	var env Envelope
	if err := json.Unmarshal(m.Data, &env); err != nil {
		slog.Warn("Dropping undecodable event",
			slog.String("subject", m.Subject), log.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), dispatchTimeout,
	)
	defer cancel()

	if _, err := s.dispatcher.Dispatch(ctx, &env); err != nil {
		slog.Error("Event dispatch failed",
			log.EventType(env.Type),
			log.UserID(env.UserID),
			log.Token(env.Token),
			log.Error(err))
	}
}
