// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package pipeline moves accepted telemetry events from the HTTP layer to the
// aggregation engine over an in-process Watermill Pub/Sub. The HTTP handler
// already appended the event to the durable log before publishing, so the
// pipeline is responsible for eventual aggregation, not durability: failed
// handlers retry with backoff and exhausted messages land on a poison topic.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/metrics"
	"github.com/seguefm/segue/internal/models"
)

// TopicEvents carries accepted telemetry events.
const TopicEvents = "telemetry.events"

const handlerName = "aggregate-events"

// EventHandler consumes one event; the aggregation engine satisfies it. An
// error triggers the router's retry policy.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *models.Event) error
}

// Pipeline owns the Pub/Sub, the router, and the aggregation consumer.
type Pipeline struct {
	pubsub *gochannel.GoChannel
	router *message.Router
}

// New builds the pipeline: a buffered in-process Pub/Sub and a router with
// panic recovery, exponential-backoff retry, correlation IDs, and a poison
// queue for messages that exhaust their retries.
func New(cfg *config.PipelineConfig, handler EventHandler) (*Pipeline, error) {
	logger := newWatermillLogger()

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.BufferSize,
	}, logger)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	// Middleware order matters: the first added is the outermost wrapper.
	// The poison queue must sit outside Retry so it only sees an error after
	// the retry budget is exhausted; with Retry outside, the poison queue
	// would swallow the first failure and ack the message unretried.
	router.AddMiddleware(middleware.Recoverer)

	if cfg.PoisonTopic != "" {
		poison, err := middleware.PoisonQueue(pubsub, cfg.PoisonTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue: %w", err)
		}
		router.AddMiddleware(poison)
	}

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      2.0,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)

	router.AddMiddleware(middleware.CorrelationID)

	p := &Pipeline{pubsub: pubsub, router: router}

	router.AddNoPublisherHandler(
		handlerName,
		TopicEvents,
		pubsub,
		func(msg *message.Message) error {
			return p.consume(msg, handler)
		},
	)

	return p, nil
}

// Publish hands one accepted event to the aggregation consumer.
func (p *Pipeline) Publish(ev *models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	middleware.SetCorrelationID(ev.EventID, msg)

	if err := p.pubsub.Publish(TopicEvents, msg); err != nil {
		metrics.PipelineMessages.WithLabelValues("publish_failed").Inc()
		return fmt.Errorf("publish event: %w", err)
	}
	metrics.PipelineMessages.WithLabelValues("published").Inc()
	return nil
}

func (p *Pipeline) consume(msg *message.Message, handler EventHandler) error {
	var ev models.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		// A malformed payload will never unmarshal on retry; push it straight
		// to the poison queue by failing permanently.
		metrics.PipelineMessages.WithLabelValues("malformed").Inc()
		return fmt.Errorf("unmarshal event payload: %w", err)
	}

	if err := handler.HandleEvent(msg.Context(), &ev); err != nil {
		metrics.PipelineMessages.WithLabelValues("failed").Inc()
		return err
	}

	metrics.PipelineMessages.WithLabelValues("processed").Inc()
	return nil
}

// Run starts the router and blocks until ctx is cancelled or the router
// stops. The router is ready for publishes once Running() closes; callers
// that need the guarantee should wait on Running after starting Run.
func (p *Pipeline) Run(ctx context.Context) error {
	logging.Info().Str("topic", TopicEvents).Msg("event pipeline starting")
	return p.router.Run(ctx)
}

// Running closes once the router handlers are subscribed.
func (p *Pipeline) Running() chan struct{} {
	return p.router.Running()
}

// Close shuts the router and Pub/Sub down.
func (p *Pipeline) Close() error {
	if err := p.router.Close(); err != nil {
		return fmt.Errorf("close router: %w", err)
	}
	if err := p.pubsub.Close(); err != nil {
		return fmt.Errorf("close pubsub: %w", err)
	}
	return nil
}

// WaitReady blocks until the router is running or the timeout elapses.
func (p *Pipeline) WaitReady(timeout time.Duration) error {
	select {
	case <-p.router.Running():
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pipeline not running after %s", timeout)
	}
}
