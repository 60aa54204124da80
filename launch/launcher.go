package launch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/makimoto/kuroko2/admission"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/lock"
	"github.com/makimoto/kuroko2/token"
)

const (
	// DefaultLockTTL is how long a distributed launch lock is held before
	// it expires on its own.
	DefaultLockTTL = 30 * time.Second
)

// Launcher serializes the admission check and instance creation for each
// definition so that two concurrent launches cannot both observe an empty
// token set and slip past an exclusive admission mode.
//
// Within a single process a per-definition mutex is enough. When multiple
// processes launch against the same store, configure a lock.Store so the
// check-then-create window is also closed across processes.
type Launcher struct {
	id        id.LauncherID
	gate      *admission.Gate
	instances instance.Store
	tokens    token.Store
	logger    *slog.Logger

	keyed *keyedMutex
	locks lock.Store // optional
	ttl   time.Duration

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
	limit      rate.Limit
	burst      int

	initialStatus token.Status
	emitInitial   bool
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(la *Launcher) { la.logger = l }
}

// WithLockStore enables a distributed launch lock so that launchers in
// separate processes also serialize per definition.
func WithLockStore(s lock.Store) Option {
	return func(la *Launcher) { la.locks = s }
}

// WithLockTTL sets the distributed lock TTL. Default is DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(la *Launcher) { la.ttl = ttl }
}

// WithRateLimit throttles launches per definition. A launch that exceeds
// the limit is denied, not queued.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(la *Launcher) {
		la.limit = limit
		la.burst = burst
	}
}

// WithInitialStatus sets the status of the token emitted at launch.
// Default is token.StatusWorking.
func WithInitialStatus(s token.Status) Option {
	return func(la *Launcher) { la.initialStatus = s }
}

// WithoutInitialToken disables the token emitted at launch. Without it,
// exclusive admission modes cannot see an instance until its first status
// report, so concurrent launches may both be admitted.
func WithoutInitialToken() Option {
	return func(la *Launcher) { la.emitInitial = false }
}

// New creates a Launcher.
func New(gate *admission.Gate, instances instance.Store, tokens token.Store, opts ...Option) *Launcher {
	la := &Launcher{
		id:            id.NewLauncherID(),
		gate:          gate,
		instances:     instances,
		tokens:        tokens,
		logger:        slog.Default(),
		keyed:         newKeyedMutex(),
		ttl:           DefaultLockTTL,
		limiters:      make(map[string]*rate.Limiter),
		limit:         rate.Inf,
		initialStatus: token.StatusWorking,
		emitInitial:   true,
	}
	for _, opt := range opts {
		opt(la)
	}
	return la
}

// ID returns the launcher's identity, recorded on every instance it creates.
func (la *Launcher) ID() id.LauncherID { return la.id }

// TryLaunch checks admission for def and, if admitted, creates an instance
// and emits its initial token in the same critical section. It returns the
// created instance and whether the launch was admitted. A denial is not an
// error; err is non-nil only when the store fails.
func (la *Launcher) TryLaunch(ctx context.Context, def *definition.Definition) (*instance.Instance, bool, error) {
	if la.limit != rate.Inf && !la.limiter(def.ID.String()).Allow() {
		la.logger.Debug("launch throttled",
			slog.String("definition_id", def.ID.String()),
			slog.String("definition_name", def.Name),
		)
		return nil, false, nil
	}

	key := def.ID.String()
	la.keyed.Lock(key)
	defer la.keyed.Unlock(key)

	if la.locks != nil {
		acquired, err := la.locks.AcquireLock(ctx, def.ID, la.id, la.ttl)
		if err != nil {
			return nil, false, fmt.Errorf("acquire launch lock: %w", err)
		}
		if !acquired {
			la.logger.Debug("launch lock held elsewhere",
				slog.String("definition_id", def.ID.String()),
			)
			return nil, false, nil
		}
		defer func() {
			if err := la.locks.ReleaseLock(ctx, def.ID, la.id); err != nil {
				la.logger.Warn("release launch lock",
					slog.String("definition_id", def.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	admitted, err := la.gate.MayStart(ctx, def)
	if err != nil {
		return nil, false, err
	}
	if !admitted {
		return nil, false, nil
	}

	now := time.Now().UTC()
	inst := &instance.Instance{
		ID:           id.NewInstanceID(),
		DefinitionID: def.ID,
		LaunchedBy:   la.id,
		StartedAt:    now,
	}
	inst.CreatedAt = now
	inst.UpdatedAt = now
	if err := la.instances.CreateInstance(ctx, inst); err != nil {
		return nil, false, fmt.Errorf("create instance: %w", err)
	}

	// The initial token is what makes later concurrent launches observe
	// this instance before it reports any status of its own.
	if la.emitInitial {
		tok := &token.Token{
			ID:           id.NewTokenID(),
			InstanceID:   inst.ID,
			DefinitionID: def.ID,
			Status:       la.initialStatus,
			EmittedAt:    now,
		}
		tok.CreatedAt = now
		tok.UpdatedAt = now
		if err := la.tokens.AppendToken(ctx, tok); err != nil {
			return nil, false, fmt.Errorf("append initial token: %w", err)
		}
	}

	la.logger.Info("instance launched",
		slog.String("definition_id", def.ID.String()),
		slog.String("definition_name", def.Name),
		slog.String("instance_id", inst.ID.String()),
	)
	return inst, true, nil
}

func (la *Launcher) limiter(key string) *rate.Limiter {
	la.limitersMu.Lock()
	defer la.limitersMu.Unlock()
	l, ok := la.limiters[key]
	if !ok {
		l = rate.NewLimiter(la.limit, la.burst)
		la.limiters[key] = l
	}
	return l
}
