package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/admission"
	"github.com/makimoto/kuroko2/backoff"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/ext"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/launch"
	mw "github.com/makimoto/kuroko2/middleware"
	"github.com/makimoto/kuroko2/observability"
	"github.com/makimoto/kuroko2/store"
	"github.com/makimoto/kuroko2/token"
)

// Engine is the top-level coordinator. It owns a store, an admission gate,
// a lifecycle guard, a launcher, an extension registry, and a middleware
// chain wrapped around every admission decision.
//
// Create one with New() and functional options; WithStore is required.
type Engine struct {
	store      store.Store
	gate       *admission.Gate
	guard      *admission.Guard
	launcher   *launch.Launcher
	extensions *ext.Registry
	logger     *slog.Logger

	mws   []mw.Middleware
	chain mw.Middleware

	bo              backoff.Strategy
	maxAttempts     int
	decisionTimeout time.Duration

	launcherOpts []launch.Option

	// pendingExts collects extensions passed via options until the registry
	// exists; New registers them after the built-in metrics extension.
	pendingExts []ext.Extension

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricsExt     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the persistence backend. Required.
func WithStore(s store.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithLogger sets the structured logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pendingExts = append(eng.pendingExts, e) }
}

// WithMiddleware appends middleware to the engine's decision chain, after
// the built-in stack (recover, tracing, metrics, logging, timeout).
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the delay strategy AwaitLaunch uses between admission
// attempts. Default is backoff.DefaultStrategy() (exponential with jitter).
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithMaxLaunchAttempts bounds the number of admission attempts made by
// AwaitLaunch. Zero means retry until the context is cancelled.
func WithMaxLaunchAttempts(n int) Option {
	return func(eng *Engine) { eng.maxAttempts = n }
}

// WithDecisionTimeout bounds how long a single admission decision may take.
// Zero disables the deadline.
func WithDecisionTimeout(d time.Duration) Option {
	return func(eng *Engine) { eng.decisionTimeout = d }
}

// WithLauncherOptions forwards options to the engine's launcher, e.g.
// launch.WithLockStore or launch.WithRateLimit.
func WithLauncherOptions(opts ...launch.Option) Option {
	return func(eng *Engine) { eng.launcherOpts = append(eng.launcherOpts, opts...) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// WithoutMetricsExtension disables the built-in observability extension.
// Useful when the application registers its own.
func WithoutMetricsExtension() Option {
	return func(eng *Engine) { eng.metricsExt = false }
}

// New creates an Engine around a store.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		logger:     slog.Default(),
		bo:         backoff.DefaultStrategy(),
		metricsExt: true,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.store == nil {
		return nil, kuroko2.ErrNoStore
	}

	eng.extensions = ext.NewRegistry(eng.logger)
	eng.gate = admission.NewGate(eng.store)
	eng.guard = admission.NewGuard(eng.store, eng.store)
	eng.launcher = launch.New(eng.gate, eng.store, eng.store,
		append([]launch.Option{launch.WithLogger(eng.logger)}, eng.launcherOpts...)...)

	// Built-in metrics extension, unless disabled.
	if eng.metricsExt {
		var obsExt *observability.MetricsExtension
		var err error
		if eng.meterProvider != nil {
			meter := eng.meterProvider.Meter("github.com/makimoto/kuroko2/observability")
			obsExt, err = observability.NewMetricsExtensionWithMeter(meter)
		} else {
			obsExt, err = observability.NewMetricsExtension()
		}
		if err != nil {
			return nil, fmt.Errorf("kuroko2: build metrics extension: %w", err)
		}
		eng.extensions.Register(obsExt)
	}
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/makimoto/kuroko2")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/makimoto/kuroko2")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default decision stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(eng.decisionTimeout),
	}
	all := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	all = append(all, defaultMws...)
	all = append(all, eng.mws...)
	eng.chain = mw.Chain(all...)

	return eng, nil
}

// ──────────────────────────────────────────────────
// Definition operations
// ──────────────────────────────────────────────────

// CreateDefinition validates and persists a new definition. A zero ID and
// zero timestamps are filled in; the caller's struct is updated in place.
func (eng *Engine) CreateDefinition(ctx context.Context, d *definition.Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID.IsNil() {
		d.ID = id.NewDefinitionID()
	}
	if d.CreatedAt.IsZero() {
		d.Entity = kuroko2.NewEntity()
	}

	if err := eng.store.CreateDefinition(ctx, d); err != nil {
		return err
	}
	eng.extensions.EmitDefinitionCreated(ctx, d)
	return nil
}

// GetDefinition retrieves a definition by ID.
func (eng *Engine) GetDefinition(ctx context.Context, definitionID id.DefinitionID) (*definition.Definition, error) {
	return eng.store.GetDefinition(ctx, definitionID)
}

// UpdateDefinition validates and persists changes to a definition under the
// optimistic version check.
func (eng *Engine) UpdateDefinition(ctx context.Context, d *definition.Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := eng.store.UpdateDefinition(ctx, d); err != nil {
		return err
	}
	eng.extensions.EmitDefinitionUpdated(ctx, d)
	return nil
}

// ListDefinitions returns definitions matching the given filters.
func (eng *Engine) ListDefinitions(ctx context.Context, opts definition.ListOpts) ([]*definition.Definition, error) {
	return eng.store.ListDefinitions(ctx, opts)
}

// CountDefinitions returns the number of definitions matching the filters.
func (eng *Engine) CountDefinitions(ctx context.Context, opts definition.CountOpts) (int64, error) {
	return eng.store.CountDefinitions(ctx, opts)
}

// DestroyDefinition removes a definition together with its instances and
// tokens. The lifecycle guard is consulted first: while any instance of the
// definition still carries a token, the destroy is refused with a
// *kuroko2.ValidationError and nothing is deleted.
func (eng *Engine) DestroyDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	d, err := eng.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return err
	}

	ok, reason, err := eng.guard.MayDestroy(ctx, d)
	if err != nil {
		return err
	}
	if !ok {
		eng.extensions.EmitDestroyDenied(ctx, d, reason)
		return &kuroko2.ValidationError{Op: "destroy definition", Reason: reason}
	}

	// Children first, so a failure part-way leaves the definition present
	// and the destroy retryable.
	if err := eng.store.DeleteTokensByDefinition(ctx, definitionID); err != nil {
		return err
	}
	if err := eng.store.DeleteInstancesByDefinition(ctx, definitionID); err != nil {
		return err
	}
	if err := eng.store.DeleteDefinition(ctx, definitionID); err != nil {
		return err
	}

	eng.extensions.EmitDefinitionDestroyed(ctx, d)
	return nil
}

// MayDestroy reports whether the definition may be destroyed right now,
// without destroying it. When it denies, reason explains why.
func (eng *Engine) MayDestroy(ctx context.Context, definitionID id.DefinitionID) (ok bool, reason string, err error) {
	d, err := eng.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return false, "", err
	}
	return eng.guard.MayDestroy(ctx, d)
}

// ──────────────────────────────────────────────────
// Launch operations
// ──────────────────────────────────────────────────

// MayStartNewInstance reports whether a new instance of the definition
// would be admitted right now, without launching one. The decision runs
// through the engine's middleware chain.
func (eng *Engine) MayStartNewInstance(ctx context.Context, definitionID id.DefinitionID) (bool, error) {
	d, err := eng.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return false, err
	}
	return eng.chain(ctx, d, func(ctx context.Context) (bool, error) {
		return eng.gate.MayStart(ctx, d)
	})
}

// Launch attempts to launch one instance of the definition. The admission
// decision and instance creation run inside the launcher's per-definition
// critical section, wrapped in the engine's middleware chain. A denial is
// not an error.
func (eng *Engine) Launch(ctx context.Context, definitionID id.DefinitionID) (*instance.Instance, bool, error) {
	d, err := eng.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, false, err
	}
	return eng.launchDefinition(ctx, d)
}

func (eng *Engine) launchDefinition(ctx context.Context, d *definition.Definition) (*instance.Instance, bool, error) {
	var inst *instance.Instance
	admitted, err := eng.chain(ctx, d, func(ctx context.Context) (bool, error) {
		var ok bool
		var err error
		inst, ok, err = eng.launcher.TryLaunch(ctx, d)
		return ok, err
	})
	if err != nil {
		return nil, false, err
	}
	if !admitted {
		eng.extensions.EmitLaunchDenied(ctx, d)
		return nil, false, nil
	}
	eng.extensions.EmitInstanceLaunched(ctx, d, inst)
	return inst, true, nil
}

// AwaitLaunch repeatedly attempts to launch the definition until admission
// is granted, the context is cancelled, or the attempt budget configured
// with WithMaxLaunchAttempts runs out.
func (eng *Engine) AwaitLaunch(ctx context.Context, definitionID id.DefinitionID) (*instance.Instance, error) {
	d, err := eng.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		inst, admitted, err := eng.launchDefinition(ctx, d)
		if err != nil {
			return nil, err
		}
		if admitted {
			return inst, nil
		}

		if eng.maxAttempts > 0 && attempt+1 >= eng.maxAttempts {
			return nil, launch.ErrAdmissionTimeout
		}

		timer := time.NewTimer(eng.bo.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// ──────────────────────────────────────────────────
// Instance and token operations
// ──────────────────────────────────────────────────

// GetInstance retrieves an instance by ID.
func (eng *Engine) GetInstance(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	return eng.store.GetInstance(ctx, instanceID)
}

// ListInstances returns all instances of a definition, oldest first.
func (eng *Engine) ListInstances(ctx context.Context, definitionID id.DefinitionID) ([]*instance.Instance, error) {
	return eng.store.ListInstancesByDefinition(ctx, definitionID)
}

// RecordToken appends a status token for the instance. Seq is assigned from
// the instance's current token count, so tokens list back in record order.
func (eng *Engine) RecordToken(ctx context.Context, instanceID id.InstanceID, status token.Status) (*token.Token, error) {
	if !status.Valid() {
		return nil, token.ErrInvalidStatus
	}

	inst, err := eng.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	existing, err := eng.store.ListTokensByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &token.Token{
		Entity:       kuroko2.Entity{CreatedAt: now, UpdatedAt: now},
		ID:           id.NewTokenID(),
		InstanceID:   inst.ID,
		DefinitionID: inst.DefinitionID,
		Status:       status,
		Seq:          len(existing),
		EmittedAt:    now,
	}
	if err := eng.store.AppendToken(ctx, t); err != nil {
		return nil, err
	}

	eng.extensions.EmitTokenRecorded(ctx, t)
	return t, nil
}

// SnapshotStatuses returns the distinct token statuses currently live for
// the definition. This is the same snapshot the admission gate decides over.
func (eng *Engine) SnapshotStatuses(ctx context.Context, definitionID id.DefinitionID) (token.StatusSet, error) {
	return eng.store.DistinctStatusesByDefinition(ctx, definitionID)
}

// FinishInstance stamps the instance as finished and notifies extensions
// with the elapsed wall time since launch.
func (eng *Engine) FinishInstance(ctx context.Context, instanceID id.InstanceID) error {
	inst, err := eng.store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := eng.store.FinishInstance(ctx, instanceID, now); err != nil {
		return err
	}
	inst.FinishedAt = &now
	inst.UpdatedAt = now

	eng.extensions.EmitInstanceFinished(ctx, inst, now.Sub(inst.StartedAt))
	return nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate runs the store's schema migrations.
func (eng *Engine) Migrate(ctx context.Context) error {
	return eng.store.Migrate(ctx)
}

// Ping checks store connectivity.
func (eng *Engine) Ping(ctx context.Context) error {
	return eng.store.Ping(ctx)
}

// Close notifies extensions of shutdown and closes the store.
func (eng *Engine) Close(ctx context.Context) error {
	eng.extensions.EmitShutdown(ctx)
	return eng.store.Close()
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Store returns the underlying store.
func (eng *Engine) Store() store.Store { return eng.store }

// Launcher returns the engine's launcher, e.g. to read its LauncherID.
func (eng *Engine) Launcher() *launch.Launcher { return eng.launcher }
