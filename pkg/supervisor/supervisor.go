// Package supervisor runs the connection lifecycle and main processing loop
// of spec §4.4: connect, ensure groups, replay pending, then a steady-state
// loop that classifies faults into four layers (missing group, connection
// loss, cancellation, everything else) and recovers or exits accordingly.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/broker"
	"github.com/chris-alexander-pop/system-design-library/pkg/dedup"
	"github.com/chris-alexander-pop/system-design-library/pkg/dispatch"
	apperrors "github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/registry"
	"github.com/chris-alexander-pop/system-design-library/pkg/resilience"
	"go.mongodb.org/mongo-driver/mongo"
)

// BrokerFactory constructs a fresh broker connection, pinging before return.
type BrokerFactory func(ctx context.Context) (broker.Broker, error)

// Store is the narrow surface the supervisor needs from the document-store
// client: the handle passed opaquely to handlers, and a way to release the
// connection on shutdown. *docstore.Client satisfies this directly.
type Store interface {
	Database() *mongo.Database
	Close(ctx context.Context) error
}

// StoreFactory constructs a fresh document-store connection, pinging before
// return.
type StoreFactory func(ctx context.Context) (Store, error)

// Config carries the stream topology and tuning knobs from spec §6.
type Config struct {
	InboxStream    string
	InternalStream string
	DLQStream      string
	ConsumerGroup  string
	BatchSize      int64
	BlockTimeout   time.Duration
	MaxRetries     int64
	DedupTTL       time.Duration

	// StartupBackoff/MaxBackoff/BackoffFactor bound the exponential
	// backoff used both at startup (spec §4.4 step 1-2) and during
	// steady-state reconnection (spec §7 Layer 2); spec §8 fixes these at
	// 1s initial, 30s cap, factor 2.
	StartupBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultConfig fills in the spec's fixed backoff parameters, leaving the
// stream/tuning fields for the caller to set.
func DefaultConfig() Config {
	return Config{
		StartupBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2,
	}
}

// Supervisor owns the broker and document-store connections exclusively;
// per spec §5's shared-resource policy, no other component mutates them.
type Supervisor struct {
	brokerFactory BrokerFactory
	storeFactory  StoreFactory
	registry      *registry.Registry
	cfg           Config
	log           *slog.Logger
	consumerID    string

	b          broker.Broker
	store      Store
	dispatcher *dispatch.Dispatcher
}

// New returns a Supervisor ready to Run. consumerID is this process's
// broker consumer identity (spec §5: regenerated per restart; pending
// entries from prior identities are picked up by replay).
func New(brokerFactory BrokerFactory, storeFactory StoreFactory, reg *registry.Registry, cfg Config, log *slog.Logger, consumerID string) *Supervisor {
	return &Supervisor{
		brokerFactory: brokerFactory,
		storeFactory:  storeFactory,
		registry:      reg,
		cfg:           cfg,
		log:           log,
		consumerID:    consumerID,
	}
}

// Run executes the full lifecycle: connect, ensure groups, replay pending,
// then the steady-state loop. It returns nil when the steady-state loop
// observes cancellation. Otherwise it returns the error that stopped it: a
// fatal configuration error or ctx.Err() from the connect phase, any error
// from ensuring groups or replaying pending entries before the loop starts,
// or a non-connection broker error during missing-group recovery.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.closeClients()

	if err := s.ensureGroups(ctx); err != nil {
		return err
	}

	if err := s.replayPending(ctx, s.cfg.InboxStream); err != nil {
		return err
	}
	if err := s.replayPending(ctx, s.cfg.InternalStream); err != nil {
		return err
	}

	s.log.Info("event processor started", "consumer_id", s.consumerID,
		"streams", []string{s.cfg.InboxStream, s.cfg.InternalStream})

	return s.loop(ctx)
}

// connect dials the broker, then the document store, each with its own
// startup backoff reset to the initial value (spec §8: "reset for the
// document-store phase").
func (s *Supervisor) connect(ctx context.Context) error {
	backoff := resilience.NewBackoff(s.cfg.StartupBackoff, s.cfg.MaxBackoff, s.cfg.BackoffFactor)

	for {
		b, err := s.brokerFactory(ctx)
		if err == nil {
			s.b = b
			s.dispatcher = s.newDispatcher()
			break
		}
		if apperrors.Is(err, apperrors.CodeConfiguration) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := backoff.Next()
		s.log.Warn("broker not available at startup, retrying", "error", err.Error(), "retry_in", wait)
		if !sleepFn(ctx, wait) {
			return ctx.Err()
		}
	}

	backoff.Reset()
	for {
		store, err := s.storeFactory(ctx)
		if err == nil {
			s.store = store
			s.dispatcher = s.newDispatcher()
			return nil
		}
		if apperrors.Is(err, apperrors.CodeConfiguration) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := backoff.Next()
		s.log.Warn("document store not available at startup, retrying", "error", err.Error(), "retry_in", wait)
		if !sleepFn(ctx, wait) {
			return ctx.Err()
		}
	}
}

func (s *Supervisor) newDispatcher() *dispatch.Dispatcher {
	var db *mongo.Database
	if s.store != nil {
		db = s.store.Database()
	}
	return dispatch.New(s.b, dedup.New(s.b), s.registry, db, s.log, dispatch.Config{
		DLQStream:     s.cfg.DLQStream,
		ConsumerGroup: s.cfg.ConsumerGroup,
		MaxRetries:    s.cfg.MaxRetries,
		DedupTTL:      s.cfg.DedupTTL,
	})
}

func (s *Supervisor) ensureGroups(ctx context.Context) error {
	if err := s.b.EnsureGroup(ctx, s.cfg.InboxStream, s.cfg.ConsumerGroup); err != nil {
		return err
	}
	return s.b.EnsureGroup(ctx, s.cfg.InternalStream, s.cfg.ConsumerGroup)
}

// replayPending claims and processes every entry still pending from a prior
// consumer identity on stream, with idle-time 0 (spec §6's persisted-state
// note: the consumer is stateless, so this is how ownership transfers).
func (s *Supervisor) replayPending(ctx context.Context, stream string) error {
	for {
		pending, err := s.b.PendingRange(ctx, stream, s.cfg.ConsumerGroup, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		for _, entry := range pending {
			claimed, err := s.b.Claim(ctx, stream, s.cfg.ConsumerGroup, s.consumerID, 0, []string{entry.ID})
			if err != nil {
				return err
			}
			if len(claimed) == 0 {
				continue
			}
			if err := s.dispatcher.Process(ctx, stream, claimed[0], entry.DeliveryCount); err != nil {
				return err
			}
		}
	}
}

// loop is the steady-state processing loop with the four-layer fault
// classification of spec §7.
func (s *Supervisor) loop(ctx context.Context) error {
	backoff := resilience.NewBackoff(s.cfg.StartupBackoff, s.cfg.MaxBackoff, s.cfg.BackoffFactor)

	for {
		if ctx.Err() != nil {
			s.log.Info("event processing cancelled")
			return nil
		}

		err := s.runOnce(ctx)
		if err == nil {
			backoff.Reset()
			continue
		}

		if ctx.Err() != nil {
			s.log.Info("event processing cancelled")
			return nil
		}

		switch {
		case broker.IsNoGroupErr(err):
			// Layer 1: the group vanished (broker restarted without
			// persistence, or was deleted out of band).
			s.log.Warn("consumer group missing, re-creating groups", "consumer_group", s.cfg.ConsumerGroup)
			if reErr := s.ensureGroups(ctx); reErr != nil {
				if broker.IsConnErr(reErr) {
					s.layer2Reconnect(ctx, backoff)
					continue
				}
				// Non-transient broker response error (permissions, bad
				// args): retrying will not help.
				return reErr
			}
			backoff.Reset()

		case broker.IsConnErr(err):
			// Layer 2: transport disconnect, timeout, or socket error.
			s.layer2Reconnect(ctx, backoff)

		default:
			// Layer 4: unexpected error; log and pause briefly rather than
			// spin.
			s.log.Error("unexpected error in processing loop", "error", err.Error())
			sleepFn(ctx, time.Second)
		}
	}
}

// layer2Reconnect sleeps the current backoff, then rebuilds the broker
// connection and replays recovery (spec §7 Layer 2 / §4.4's Recovering
// state). A failed recovery attempt is logged and left for the next
// iteration rather than propagated, matching the source leaving the loop
// running after a failed reconnect.
func (s *Supervisor) layer2Reconnect(ctx context.Context, backoff *resilience.Backoff) {
	wait := backoff.Next()
	s.log.Warn("broker connection error, attempting reconnection", "reconnect_in", wait)
	if !sleepFn(ctx, wait) {
		return
	}
	if err := s.recoverAfterReconnect(ctx); err != nil {
		s.log.Error("broker reconnection failed", "error", err.Error())
		return
	}
	backoff.Reset()
}

// recoverAfterReconnect rebuilds the broker connection, re-ensures both
// consumer groups, and replays pending entries for both streams.
func (s *Supervisor) recoverAfterReconnect(ctx context.Context) error {
	b, err := s.brokerFactory(ctx)
	if err != nil {
		return err
	}
	_ = s.b.Close()
	s.b = b
	s.dispatcher = s.newDispatcher()

	s.log.Info("broker reconnection successful")

	if err := s.ensureGroups(ctx); err != nil {
		return err
	}
	if err := s.replayPending(ctx, s.cfg.InboxStream); err != nil {
		return err
	}
	return s.replayPending(ctx, s.cfg.InternalStream)
}

// runOnce issues one blocking multi-stream read and dispatches every
// returned message, in delivery order per stream.
func (s *Supervisor) runOnce(ctx context.Context) error {
	messages, err := s.b.ReadGroup(ctx, s.cfg.ConsumerGroup, s.consumerID,
		[]string{s.cfg.InboxStream, s.cfg.InternalStream}, s.cfg.BatchSize, s.cfg.BlockTimeout)
	if err != nil {
		return err
	}

	for stream, msgs := range messages {
		for _, msg := range msgs {
			// A message that has never been pending is delivered with an
			// implicit times_delivered of 1 (spec §9's open question: the
			// consumer never maintains an independent retry counter).
			if err := s.dispatcher.Process(ctx, stream, msg, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Supervisor) closeClients() {
	if s.b != nil {
		_ = s.b.Close()
	}
	if s.store != nil {
		_ = s.store.Close(context.Background())
	}
}

// sleepFn waits for d or ctx cancellation, returning false if ctx was
// cancelled first. It is a variable so tests can stub out real waiting.
var sleepFn = func(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
