// Package kickbus delivers administrative kick commands published by other
// backend processes (e.g. a master or auth server) over a Redis pub/sub
// channel into the local session registry. Only commands travel over the
// wire; session state never leaves the process.
package kickbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/frontend-session/logger"
	"github.com/cyberinferno/frontend-session/session"
)

// DefaultChannel is the pub/sub channel kick commands are exchanged on when
// no channel is configured.
const DefaultChannel = "frontend:session:kick"

// defaultReason is used when a command carries no reason of its own.
const defaultReason = "kicked"

// Command is one kick request. Either UID or SID selects the target; when
// both are set, UID wins and every session bound to that user is closed.
type Command struct {
	UID    string `json:"uid,omitempty"`
	SID    uint32 `json:"sid,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Config holds construction-time settings for a Bus.
type Config struct {
	// Channel is the pub/sub channel to subscribe to. Defaults to
	// DefaultChannel when empty.
	Channel string
}

// DefaultConfig returns a Config with the default channel.
//
// Returns:
//   - A Config subscribing to DefaultChannel
func DefaultConfig() Config {
	return Config{Channel: DefaultChannel}
}

// Bus subscribes to a Redis pub/sub channel and applies every received kick
// command to the local session registry. Start it once; Stop shuts the
// subscriber down and waits for it to exit.
type Bus struct {
	client  *redis.Client
	channel string
	svc     *session.Service
	log     logger.Logger
	cancel  context.CancelFunc
	group   *errgroup.Group
	started atomic.Bool
}

// NewBus creates a kick bus for the given registry.
//
// Parameters:
//   - client: The Redis client used for the subscription
//   - cfg: Bus settings (e.g. from DefaultConfig)
//   - svc: The local session registry commands are applied to
//   - log: Structured logger; nil discards output
//
// Returns:
//   - A new Bus ready to Start
func NewBus(client *redis.Client, cfg Config, svc *session.Service, log logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNopLogger()
	}

	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	return &Bus{
		client:  client,
		channel: channel,
		svc:     svc,
		log:     log.With(logger.Field{Key: "component", Value: "kick_bus"}),
	}
}

// Start subscribes to the channel and launches the consumer goroutine. It
// returns an error when the bus is already running or the subscription could
// not be confirmed.
//
// Parameters:
//   - ctx: Context bounding the subscription; cancelling it stops the bus
//
// Returns:
//   - An error if the subscription failed
func (b *Bus) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("kick bus already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		b.started.Store(false)
		return fmt.Errorf("kick bus: subscribe to %q: %w", b.channel, err)
	}

	group, ctx := errgroup.WithContext(ctx)
	b.group = group

	messages := sub.Channel()
	group.Go(func() error {
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-messages:
				if !ok {
					return nil
				}

				b.dispatch([]byte(msg.Payload))
			}
		}
	})

	b.log.Info("kick bus subscribed", logger.Field{Key: "channel", Value: b.channel})
	return nil
}

// Stop cancels the subscription and waits for the consumer goroutine to
// exit. Safe to call when the bus never started.
//
// Returns:
//   - The consumer goroutine's exit error, if any
func (b *Bus) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}

	if b.group != nil {
		return b.group.Wait()
	}

	return nil
}

// dispatch decodes one wire payload and applies it. Malformed payloads are
// logged and dropped; a bad command from one publisher must not take the
// consumer down.
func (b *Bus) dispatch(payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.log.Warn("discarding malformed kick command",
			logger.Field{Key: "error", Value: err.Error()})
		return
	}

	b.Apply(cmd)
}

// Apply executes one kick command against the local registry. Exposed so
// in-process admin surfaces can reuse the same semantics without Redis.
//
// Parameters:
//   - cmd: The kick command to execute
func (b *Bus) Apply(cmd Command) {
	reason := cmd.Reason
	if reason == "" {
		reason = defaultReason
	}

	switch {
	case cmd.UID != "":
		b.svc.Kick(cmd.UID, reason, nil)
	case cmd.SID != 0:
		b.svc.KickBySessionID(cmd.SID, reason, nil)
	default:
		b.log.Warn("discarding kick command without a target")
	}
}

// Publish sends one kick command to the channel. Used by the process that
// decides the kick.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - client: The Redis client to publish through
//   - channel: Target channel; DefaultChannel when empty
//   - cmd: The kick command to send
//
// Returns:
//   - An error if marshaling or publishing failed
func Publish(ctx context.Context, client *redis.Client, channel string, cmd Command) error {
	if channel == "" {
		channel = DefaultChannel
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal kick command: %w", err)
	}

	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish kick command to %q: %w", channel, err)
	}

	return nil
}
