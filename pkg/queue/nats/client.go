package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Config holds connection and stream settings
type Config struct {
	URL           string
	StreamName    string
	RetryAttempts int
	RetryDelay    time.Duration
	// NakDelay is the wait before a failed batch is redelivered.
	// Defaults to one second.
	NakDelay time.Duration
}

// Client publishes and consumes bar batches over a JetStream work queue
type Client struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	stream   string
	nakDelay time.Duration
	logger   zerolog.Logger
}

// NewClient connects and logs connection state changes on logger
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	logger = logger.With().Str("component", "nats").Str("url", cfg.URL).Logger()

	nc, err := nats.Connect(cfg.URL,
		nats.Name("dipscope"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.RetryAttempts),
		nats.ReconnectWait(cfg.RetryDelay),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	nakDelay := cfg.NakDelay
	if nakDelay <= 0 {
		nakDelay = time.Second
	}
	return &Client{nc: nc, js: js, stream: cfg.StreamName, nakDelay: nakDelay, logger: logger}, nil
}

// EnsureStream creates or updates the work-queue stream for bar writes
func (c *Client) EnsureStream(ctx context.Context) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      c.stream,
		Subjects:  []string{SubjectBarWrite},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", c.stream, err)
	}
	return nil
}

// PublishBarBatches publishes batches in order, waiting for each ack so
// the stream holds them in the same order. Republishing the same batch
// inside the stream's duplicate window is ignored by the server.
func (c *Client) PublishBarBatches(ctx context.Context, batches []BarBatchMsg) error {
	for _, b := range batches {
		data, err := Encode(b)
		if err != nil {
			return fmt.Errorf("failed to encode batch %s@%d: %w", b.Source, b.Offset, err)
		}
		if _, err := c.js.Publish(ctx, SubjectBarWrite, data, jetstream.WithMsgID(b.MsgID())); err != nil {
			return fmt.Errorf("failed to publish batch %s@%d: %w", b.Source, b.Offset, err)
		}
	}
	return nil
}

// BarBatchHandler processes one decoded batch
type BarBatchHandler func(ctx context.Context, batch *BarBatchMsg) error

// ErrUndecodable marks a message that can never be processed
var ErrUndecodable = errors.New("undecodable bar batch")

// ConsumeBarBatches starts a durable consumer delivering one batch at a
// time. A handler error naks the message and it is redelivered until it
// succeeds, so later batches wait behind it rather than being written
// around a gap. A message that fails to decode is terminated and reported
// through onTerm.
func (c *Client) ConsumeBarBatches(ctx context.Context, durable string, handle BarBatchHandler, onTerm func(error)) (jetstream.ConsumeContext, error) {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.stream, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: SubjectBarWrite,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    -1,
		MaxAckPending: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		c.handleMsg(ctx, msg, handle, onTerm)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return consumeCtx, nil
}

// stuckDeliveries is the delivery count from which a failing batch is
// logged as an error instead of a warning
const stuckDeliveries = 5

func (c *Client) handleMsg(ctx context.Context, msg jetstream.Msg, handle BarBatchHandler, onTerm func(error)) {
	batch, err := DecodeBarBatch(msg.Data())
	if err != nil {
		if onTerm != nil {
			onTerm(fmt.Errorf("%w: %v", ErrUndecodable, err))
		}
		if err := msg.Term(); err != nil {
			c.logger.Error().Err(err).Msg("failed to terminate message")
		}
		return
	}

	if err := handle(ctx, batch); err != nil {
		var delivered uint64
		if meta, merr := msg.Metadata(); merr == nil {
			delivered = meta.NumDelivered
		}
		event := c.logger.Warn()
		if delivered >= stuckDeliveries {
			event = c.logger.Error()
		}
		event.Err(err).
			Str("source", batch.Source).
			Int("offset", batch.Offset).
			Uint64("delivered", delivered).
			Msg("batch failed, requesting redelivery")
		if err := msg.NakWithDelay(c.nakDelay); err != nil {
			c.logger.Error().Err(err).Msg("failed to nak message")
		}
		return
	}

	if err := msg.Ack(); err != nil {
		c.logger.Error().Err(err).Str("source", batch.Source).Int("offset", batch.Offset).Msg("failed to ack message")
	}
}

// Close drains pending messages and closes the connection
func (c *Client) Close() {
	if c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
}
