// Package notify implements the NotificationDispatcher (C3): fan-out of a
// single message across one or more channels, each independently attempted
// so that one channel's failure never blocks another. Grounded on the
// teacher's multi-backend adapter pattern (store.Store has Postgres/Redis/
// Memory implementations behind one interface; this package applies the
// same shape to notification channels).
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/logging"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/observability"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/taskerr"
)

// Channel names are stable, wire-compatible strings (spec §3's
// notification_channels), matched case-sensitively against a registered
// Sender.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
	ChannelInApp = "in_app"
)

// Outcome is the per-channel result of a dispatch attempt.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
	OutcomeUnavailable Outcome = "unavailable"
)

// Message is the payload handed to every channel. Body is channel-agnostic
// prose; channels that need truncation (SMS) apply their own limits.
type Message struct {
	UserID  int64
	Subject string
	Body    string
	// Context carries task metadata (task id, title) a channel may use for
	// templating or threading.
	Context map[string]any
}

// Result records what happened on one channel.
type Result struct {
	Channel string
	Outcome Outcome
	Err     error
}

// Sender is the contract a channel adapter implements.
type Sender interface {
	// Send delivers msg. A nil error means accepted for delivery (not
	// necessarily confirmed read) — matching the teacher's "operation
	// acknowledged, not globally committed" distinction for queue sends.
	Send(ctx context.Context, msg Message) error
	// Available reports whether the channel is currently configured/usable,
	// so Dispatch can short-circuit without attempting a doomed send.
	Available() bool
}

// Dispatcher fans a single Message out across named channels (C3's
// send(channels, message, context) contract).
type Dispatcher struct {
	senders map[string]Sender
	log     *zap.SugaredLogger
}

// NewDispatcher builds a Dispatcher from the given channel->Sender registry.
func NewDispatcher(senders map[string]Sender) *Dispatcher {
	return &Dispatcher{senders: senders, log: logging.Component("notify")}
}

// Dispatch attempts delivery on every requested channel independently and
// returns one Result per channel, in the order requested. An unknown or
// unavailable channel yields OutcomeUnavailable rather than aborting the
// whole dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, channels []string, msg Message) []Result {
	results := make([]Result, 0, len(channels))
	for _, ch := range channels {
		sender, ok := d.senders[ch]
		if !ok || !sender.Available() {
			d.log.Warnw("channel unavailable", "channel", ch, "user_id", msg.UserID)
			observability.NotificationOutcomes.WithLabelValues(ch, string(OutcomeUnavailable)).Inc()
			results = append(results, Result{Channel: ch, Outcome: OutcomeUnavailable, Err: taskerr.Wrap(taskerr.ErrChannelUnavailable, ch)})
			continue
		}

		start := time.Now()
		err := sender.Send(ctx, msg)
		outcome := OutcomeSent
		if err != nil {
			outcome = OutcomeFailed
			d.log.Errorw("notification send failed", "channel", ch, "user_id", msg.UserID, "error", err, "elapsed", time.Since(start))
		}
		observability.NotificationOutcomes.WithLabelValues(ch, string(outcome)).Inc()
		results = append(results, Result{Channel: ch, Outcome: outcome, Err: err})
	}
	return results
}
