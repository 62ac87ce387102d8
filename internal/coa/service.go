package coa

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/coa_auth/internal/events"
	"github.com/congo-pay/coa_auth/internal/identity"
	"github.com/congo-pay/coa_auth/internal/index"
	"github.com/congo-pay/coa_auth/internal/logging"
	"github.com/congo-pay/coa_auth/internal/metrics"
	"github.com/congo-pay/coa_auth/internal/store"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

// DefaultUsersPerShard is the registry's users_per_shard when none is configured.
const DefaultUsersPerShard = index.MaxItems

// Deps wires the service to its collaborators. Store and Index are required.
type Deps struct {
	Store         store.Store
	Index         index.Index
	Policy        Policy
	UsersPerShard uint16
	Events        events.Publisher
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Now           func() time.Time
}

// Service runs the authorization state machine. Each mutating operation is a
// single store transaction; events are published after it commits.
type Service struct {
	store         store.Store
	index         index.Index
	policy        Policy
	usersPerShard uint16
	events        events.Publisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewService constructs the registry service.
func NewService(d Deps) *Service {
	s := &Service{
		store:         d.Store,
		index:         d.Index,
		policy:        d.Policy,
		usersPerShard: d.UsersPerShard,
		events:        d.Events,
		metrics:       d.Metrics,
		logger:        d.Logger,
		now:           d.Now,
	}
	if s.policy == "" {
		s.policy = PolicyPrimary
	}
	if s.usersPerShard == 0 {
		s.usersPerShard = DefaultUsersPerShard
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// OnboardInput creates a new identity with Caller as primary.
type OnboardInput struct {
	Caller  wallet.Address
	ShardID *uint16
}

// AddWalletInput binds NewWallet to the caller's identity.
type AddWalletInput struct {
	Caller    wallet.Address
	NewWallet wallet.Address
	ShardID   *uint16
}

// RemoveWalletInput unbinds Target from the caller's identity.
type RemoveWalletInput struct {
	Caller  wallet.Address
	Target  wallet.Address
	ShardID *uint16
}

// TransferInput moves primary status from the caller to NewPrimary. ShardID
// is only consulted by the emergency transfer, which touches the index.
type TransferInput struct {
	Caller     wallet.Address
	NewPrimary wallet.Address
	ShardID    *uint16
}

// LeaveInput unbinds the calling authorized wallet.
type LeaveInput struct {
	Caller  wallet.Address
	ShardID *uint16
}

// Initialize creates the registry with owner as administrator.
func (s *Service) Initialize(ctx context.Context, owner wallet.Address) (reg identity.Registry, err error) {
	defer func() { s.metrics.Observe("initialize", err) }()

	err = s.store.Update(ctx, func(kv store.KV) error {
		r := identity.NewRecords(kv)
		exists, err := r.RegistryExists()
		if err != nil {
			return err
		}
		if exists {
			return identity.ErrAlreadyInitialized
		}
		reg = identity.Registry{
			Owner:         owner,
			NextUserID:    1,
			ShardCount:    s.index.InitialShardCount(),
			UsersPerShard: s.usersPerShard,
			IndexMode:     string(s.index.Mode()),
			CreatedAt:     s.now(),
		}
		return r.PutRegistry(reg)
	})
	if err != nil {
		return identity.Registry{}, err
	}
	s.logger.Info("registry initialized",
		slog.String("owner", owner.String()),
		slog.String("index_mode", reg.IndexMode),
		slog.Uint64("shard_count", uint64(reg.ShardCount)))
	return reg, nil
}

// Onboard creates a new identity whose primary is the caller.
func (s *Service) Onboard(ctx context.Context, in OnboardInput) (acc identity.Account, err error) {
	defer func() { s.metrics.Observe("onboard", err) }()

	now := s.now()
	err = s.store.Update(ctx, func(kv store.KV) error {
		r := identity.NewRecords(kv)
		reg, err := s.registry(r)
		if err != nil {
			return err
		}
		existing, _, err := r.Account(in.Caller)
		if err != nil {
			return err
		}
		if existing.Bound() {
			return identity.ErrAlreadyOnboarded
		}
		target, err := s.index.Place(&reg, in.Caller)
		if err != nil {
			return err
		}
		shardID, err := index.ResolveShard(reg, target, in.ShardID)
		if err != nil {
			return err
		}
		acc, _, err = r.CreateIdentity(&reg, in.Caller, now, shardID)
		if err != nil {
			return err
		}
		return s.index.Put(kv, shardID, in.Caller, acc.UserID)
	})
	if err != nil {
		return identity.Account{}, err
	}

	s.metrics.Onboarded()
	s.logger.Info("identity onboarded",
		slog.Uint64("user_id", acc.UserID),
		slog.String("wallet", in.Caller.String()),
		slog.Uint64("shard_id", uint64(acc.ShardID)))
	s.publish(ctx, events.Event{Kind: events.KindOnboarded, UserID: acc.UserID, Wallet: &in.Caller, OccurredAt: now})
	return acc, nil
}

// AddAuthorizedWallet binds an unbound wallet to the caller's identity.
func (s *Service) AddAuthorizedWallet(ctx context.Context, in AddWalletInput) (added identity.Account, err error) {
	defer func() { s.metrics.Observe("add_authorized_wallet", err) }()

	now := s.now()
	err = s.store.Update(ctx, func(kv store.KV) error {
		r := identity.NewRecords(kv)
		reg, err := s.registry(r)
		if err != nil {
			return err
		}
		caller, g, err := r.Authority(in.Caller)
		if err != nil {
			return err
		}
		if !s.policy.allowsAdd(caller.IsPrimary) {
			return identity.ErrUnauthorized
		}
		shardID, err := index.ResolveShard(reg, caller.ShardID, in.ShardID)
		if err != nil {
			return err
		}
		added, err = r.AddMember(&g, in.NewWallet, now)
		if err != nil {
			return err
		}
		return s.index.Put(kv, shardID, in.NewWallet, g.UserID)
	})
	if err != nil {
		return identity.Account{}, err
	}

	s.publish(ctx, events.Event{
		Kind:       events.KindAuthorizedWalletAdded,
		UserID:     added.UserID,
		Wallet:     &in.NewWallet,
		From:       &in.Caller,
		OccurredAt: now,
	})
	return added, nil
}

// RemoveAuthorizedWallet returns one of the identity's authorized wallets to
// the unbound state. Only the primary may remove wallets.
func (s *Service) RemoveAuthorizedWallet(ctx context.Context, in RemoveWalletInput) (err error) {
	defer func() { s.metrics.Observe("remove_authorized_wallet", err) }()

	var userID uint64
	err = s.store.Update(ctx, func(kv store.KV) error {
		r := identity.NewRecords(kv)
		reg, err := s.registry(r)
		if err != nil {
			return err
		}
		caller, g, err := r.Authority(in.Caller)
		if err != nil {
			return err
		}
		if !caller.IsPrimary {
			return identity.ErrUnauthorized
		}
		if in.Target == in.Caller {
			return identity.ErrSameAccount
		}
		shardID, err := index.ResolveShard(reg, caller.ShardID, in.ShardID)
		if err != nil {
			return err
		}
		if _, err := r.RemoveMember(&g, in.Target); err != nil {
			return err
		}
		userID = g.UserID
		return s.index.Remove(kv, shardID, in.Target)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Kind:       events.KindAuthorizedWalletRemoved,
		UserID:     userID,
		Wallet:     &in.Target,
		From:       &in.Caller,
		OccurredAt: s.now(),
	})
	return nil
}

// TransferPrimaryOwnership is the emergency recovery path: NewPrimary takes
// over and the previous primary is evicted from the identity.
func (s *Service) TransferPrimaryOwnership(ctx context.Context, in TransferInput) error {
	return s.transfer(ctx, in, true)
}

// SetNewPrimaryOwnership is the routine handoff: NewPrimary takes over and the
// previous primary stays on as an authorized wallet.
func (s *Service) SetNewPrimaryOwnership(ctx context.Context, in TransferInput) error {
	in.ShardID = nil
	return s.transfer(ctx, in, false)
}

func (s *Service) transfer(ctx context.Context, in TransferInput, evict bool) (err error) {
	op, mode := "set_new_primary_ownership", events.ModeRoutine
	if evict {
		op, mode = "transfer_primary_ownership", events.ModeEmergency
	}
	defer func() { s.metrics.Observe(op, err) }()

	var userID uint64
	err = s.store.Update(ctx, func(kv store.KV) error {
		r := identity.NewRecords(kv)
		reg, err := s.registry(r)
		if err != nil {
			return err
		}
		caller, g, err := r.Authority(in.Caller)
		if err != nil {
			return err
		}
		if !caller.IsPrimary {
			return identity.ErrUnauthorized
		}
		if in.NewPrimary == in.Caller {
			return identity.ErrSameAccount
		}
		shardID, err := index.ResolveShard(reg, caller.ShardID, in.ShardID)
		if err != nil {
			return err
		}
		if _, err := r.Promote(&g, in.NewPrimary, evict); err != nil {
			return err
		}
		userID = g.UserID
		if !evict {
			return nil
		}
		return s.index.Remove(kv, shardID, in.Caller)
	})
	if err != nil {
		return err
	}

	s.logger.Info("primary ownership transferred",
		slog.Uint64("user_id", userID),
		slog.String("from", in.Caller.String()),
		slog.String("to", in.NewPrimary.String()),
		slog.String("mode", mode))
	s.publish(ctx, events.Event{
		Kind:       events.KindPrimaryOwnershipTransferred,
		UserID:     userID,
		From:       &in.Caller,
		To:         &in.NewPrimary,
		Mode:       mode,
		OccurredAt: s.now(),
	})
	return nil
}

// LeaveCoaAccount lets an authorized, non-primary wallet leave its identity.
func (s *Service) LeaveCoaAccount(ctx context.Context, in LeaveInput) (err error) {
	defer func() { s.metrics.Observe("leave_coa_account", err) }()

	var userID uint64
	err = s.store.Update(ctx, func(kv store.KV) error {
		r := identity.NewRecords(kv)
		reg, err := s.registry(r)
		if err != nil {
			return err
		}
		caller, g, err := r.Authority(in.Caller)
		if err != nil {
			return err
		}
		if caller.IsPrimary {
			return identity.ErrUnauthorized
		}
		shardID, err := index.ResolveShard(reg, caller.ShardID, in.ShardID)
		if err != nil {
			return err
		}
		if _, err := r.RemoveMember(&g, in.Caller); err != nil {
			return err
		}
		userID = g.UserID
		return s.index.Remove(kv, shardID, in.Caller)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Kind:       events.KindAuthorizedWalletRemoved,
		UserID:     userID,
		Wallet:     &in.Caller,
		OccurredAt: s.now(),
	})
	return nil
}

// Dissolve unbinds every wallet of the caller's identity. Only the primary
// may dissolve. The identity id is never reused.
func (s *Service) Dissolve(ctx context.Context, caller wallet.Address) (released []wallet.Address, err error) {
	defer func() { s.metrics.Observe("dissolve_identity", err) }()

	var userID uint64
	err = s.store.Update(ctx, func(kv store.KV) error {
		r := identity.NewRecords(kv)
		reg, err := s.registry(r)
		if err != nil {
			return err
		}
		acc, g, err := r.Authority(caller)
		if err != nil {
			return err
		}
		if !acc.IsPrimary {
			return identity.ErrUnauthorized
		}
		released, err = r.Dissolve(&reg, g)
		if err != nil {
			return err
		}
		for _, w := range released {
			if err := s.index.Remove(kv, g.ShardID, w); err != nil {
				return err
			}
		}
		userID = g.UserID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("identity dissolved", slog.Uint64("user_id", userID), slog.Int("wallets", len(released)))
	s.publish(ctx, events.Event{
		Kind:       events.KindIdentityDissolved,
		UserID:     userID,
		From:       &caller,
		Wallets:    released,
		OccurredAt: s.now(),
	})
	return released, nil
}

// Registry returns the registry record.
func (s *Service) Registry(ctx context.Context) (reg identity.Registry, err error) {
	err = s.store.View(ctx, func(kv store.KV) error {
		reg, err = identity.NewRecords(kv).Registry()
		return err
	})
	return reg, err
}

// Account returns a wallet's record. An address that was never onboarded
// comes back as an Unbound account.
func (s *Service) Account(ctx context.Context, w wallet.Address) (acc identity.Account, err error) {
	err = s.store.View(ctx, func(kv store.KV) error {
		acc, _, err = identity.NewRecords(kv).Account(w)
		return err
	})
	return acc, err
}

// Identity returns the member list of an identity.
func (s *Service) Identity(ctx context.Context, userID uint64) (g identity.Group, err error) {
	err = s.store.View(ctx, func(kv store.KV) error {
		var found bool
		g, found, err = identity.NewRecords(kv).Group(userID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("identity %d: %w", userID, identity.ErrNotFound)
		}
		return nil
	})
	return g, err
}

// Lookup resolves a wallet to its identity id through the index. Without a
// shard id the shard cached on the wallet's account is searched.
func (s *Service) Lookup(ctx context.Context, w wallet.Address, shardID *uint16) (userID uint64, err error) {
	err = s.store.View(ctx, func(kv store.KV) error {
		r := identity.NewRecords(kv)
		reg, err := s.registry(r)
		if err != nil {
			return err
		}
		var shard uint16
		if shardID != nil {
			if s.index.Mode() != index.ModeSharded || *shardID >= reg.ShardCount {
				return fmt.Errorf("%w: %d", index.ErrInvalidShardID, *shardID)
			}
			shard = *shardID
		} else {
			acc, _, err := r.Account(w)
			if err != nil {
				return err
			}
			shard = acc.ShardID
		}
		id, found, err := s.index.Lookup(kv, shard, w)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("wallet %s: %w", w, identity.ErrNotFound)
		}
		userID = id
		return nil
	})
	return userID, err
}

// Shard returns one index shard. Only the sharded index has shards.
func (s *Service) Shard(ctx context.Context, shardID uint16) (sh index.Shard, err error) {
	reader, ok := s.index.(index.ShardReader)
	if !ok {
		return index.Shard{}, fmt.Errorf("%w: %s index has no shards", index.ErrModeMismatch, s.index.Mode())
	}
	err = s.store.View(ctx, func(kv store.KV) error {
		reg, err := s.registry(identity.NewRecords(kv))
		if err != nil {
			return err
		}
		if shardID >= reg.ShardCount {
			return fmt.Errorf("%w: %d", index.ErrInvalidShardID, shardID)
		}
		sh, _, err = reader.Shard(kv, shardID)
		return err
	})
	return sh, err
}

// registry loads the registry and checks it was initialized for this index.
func (s *Service) registry(r *identity.Records) (identity.Registry, error) {
	reg, err := r.Registry()
	if err != nil {
		return identity.Registry{}, err
	}
	if err := index.CheckMode(reg, s.index); err != nil {
		return identity.Registry{}, err
	}
	return reg, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event failed", slog.String("kind", e.Kind), slog.Uint64("user_id", e.UserID), slog.Any("error", err))
	}
}
