package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/congo-pay/coa_auth/internal/wallet"
)

// Event kinds.
const (
	KindOnboarded                   = "onboarded"
	KindAuthorizedWalletAdded       = "authorized_wallet_added"
	KindAuthorizedWalletRemoved     = "authorized_wallet_removed"
	KindPrimaryOwnershipTransferred = "primary_ownership_transferred"
	KindIdentityDissolved           = "identity_dissolved"
)

// Transfer modes carried by KindPrimaryOwnershipTransferred.
const (
	ModeEmergency = "emergency"
	ModeRoutine   = "routine"
)

// Event records one committed state transition.
type Event struct {
	Kind       string           `json:"kind"`
	UserID     uint64           `json:"user_id"`
	Wallet     *wallet.Address  `json:"wallet,omitempty"`
	From       *wallet.Address  `json:"from,omitempty"`
	To         *wallet.Address  `json:"to,omitempty"`
	Wallets    []wallet.Address `json:"wallets,omitempty"`
	Mode       string           `json:"mode,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Publisher delivers events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a logging publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish writes the event to the logger.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	attrs := []any{
		slog.String("kind", event.Kind),
		slog.Uint64("user_id", event.UserID),
	}
	if event.Wallet != nil {
		attrs = append(attrs, slog.String("wallet", event.Wallet.String()))
	}
	if event.From != nil {
		attrs = append(attrs, slog.String("from", event.From.String()))
	}
	if event.To != nil {
		attrs = append(attrs, slog.String("to", event.To.String()))
	}
	if event.Mode != "" {
		attrs = append(attrs, slog.String("mode", event.Mode))
	}
	if len(event.Wallets) > 0 {
		attrs = append(attrs, slog.Int("wallets", len(event.Wallets)))
	}
	p.logger.Info("coa event", attrs...)
	return nil
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
