// Package mirror publishes broadcast table events to NATS JetStream so other
// services can follow a table without holding a WebSocket.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	MaxMsgs         int64         // Max number of messages to keep
	Replicas        int
	DuplicateWindow time.Duration
	QueueSize       int
	PublishTimeout  time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "TABLE_EVENTS",
		SubjectPrefix:   "table.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1, // No limit
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		QueueSize:       1024,
		PublishTimeout:  5 * time.Second,
	}
}

// Envelope is the message body published for every mirrored event
type Envelope struct {
	EventID   string           `json:"eventId"`
	EventType events.EventType `json:"eventType"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   json.RawMessage  `json:"payload"`
}

// JetStreamMirror queues events and publishes them from its own goroutine.
// Publish never blocks the caller; a full queue drops the event.
type JetStreamMirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig

	queue     chan *events.Event
	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	closeOnce sync.Once
}

func NewJetStreamMirror(ctx context.Context, cfg JetStreamConfig) (*JetStreamMirror, error) {
	opts := []nats.Option{
		nats.Name("poolhall-mirror"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	m := newMirror(cfg)
	m.nc = nc
	m.js = js

	if err := m.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("stream", cfg.StreamName).
		Str("subject_prefix", cfg.SubjectPrefix).
		Msg("table event mirror connected")
	return m, nil
}

func newMirror(cfg JetStreamConfig) *JetStreamMirror {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &JetStreamMirror{
		config: cfg,
		queue:  make(chan *events.Event, cfg.QueueSize),
	}
}

func (m *JetStreamMirror) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        m.config.StreamName,
		Description: "Pool table events mirrored from the table gateway",
		Subjects:    []string{fmt.Sprintf("%s.>", m.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      m.config.MaxAge,
		MaxMsgs:     m.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    m.config.Replicas,
		Duplicates:  m.config.DuplicateWindow,
	}

	stream, err := m.js.Stream(ctx, m.config.StreamName)
	if err != nil {
		if _, err = m.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", m.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = m.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", m.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Publish queues event for mirroring
func (m *JetStreamMirror) Publish(event *events.Event) {
	select {
	case m.queue <- event:
	default:
		m.dropped.Add(1)
		log.Warn().
			Str("event_type", string(event.Type)).
			Msg("mirror queue full, dropping event")
	}
}

// Run publishes queued events until ctx is cancelled
func (m *JetStreamMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-m.queue:
			if err := m.publish(ctx, event); err != nil {
				m.failed.Add(1)
				log.Error().
					Err(err).
					Str("event_id", event.ID).
					Str("event_type", string(event.Type)).
					Msg("failed to mirror event")
				continue
			}
			m.published.Add(1)
		}
	}
}

func (m *JetStreamMirror) publish(ctx context.Context, event *events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.PublishTimeout)
	defer cancel()

	msg, err := m.message(event)
	if err != nil {
		return err
	}

	ack, err := m.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID),
		jetstream.WithExpectStream(m.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", event.ID).
		Uint64("sequence", ack.Sequence).
		Msg("mirrored table event")
	return nil
}

// message builds the NATS message for event
func (m *JetStreamMirror) message(event *events.Event) (*nats.Msg, error) {
	data, err := json.Marshal(Envelope{
		EventID:   event.ID,
		EventType: event.Type,
		Timestamp: event.Timestamp,
		Payload:   event.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	return &nats.Msg{
		Subject: m.subjectFor(event.Type),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(event.Type)},
			"Event-ID":   []string{event.ID},
		},
	}, nil
}

func (m *JetStreamMirror) subjectFor(eventType events.EventType) string {
	return fmt.Sprintf("%s.%s", m.config.SubjectPrefix, eventType)
}

// Connected reports whether the NATS connection is up
func (m *JetStreamMirror) Connected() bool {
	return m.nc != nil && m.nc.IsConnected()
}

// Stats returns published, failed and dropped counts
func (m *JetStreamMirror) Stats() (published, failed, dropped uint64) {
	return m.published.Load(), m.failed.Load(), m.dropped.Load()
}

// Close drains the NATS connection
func (m *JetStreamMirror) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.nc != nil {
			err = m.nc.Drain()
		}
	})
	return err
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
