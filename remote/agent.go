package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jonwraymond/nodediag/auth"
	"github.com/jonwraymond/nodediag/health"
	"github.com/jonwraymond/nodediag/observe"
	"github.com/jonwraymond/nodediag/probe"
	"github.com/jonwraymond/nodediag/resilience"
)

// maxRequestBytes bounds the size of a probe request body.
const maxRequestBytes = 64 << 10

// ErrNoAuthenticator is returned by NewAgent when no authenticator is set.
var ErrNoAuthenticator = errors.New("remote: agent requires an authenticator")

// AgentConfig configures a worker agent.
type AgentConfig struct {
	// Node is the worker's name, used in logs and spans.
	Node string

	// Registry rebuilds probes from specs. Default: probe.DefaultRegistry.
	Registry *probe.Registry

	// Authenticator validates callers. Required.
	Authenticator auth.Authenticator

	// Authorizer decides which probe kinds a caller may run.
	// Default: SimpleRBAC with auth.DefaultRBACConfig.
	Authorizer auth.Authorizer

	// MaxConcurrent bounds probes running at once. Default: 4.
	MaxConcurrent int

	// Timeout bounds one probe run. Default: resilience.DefaultTimeout.
	Timeout time.Duration

	// Observer supplies tracing, metrics and logging. Default: no-ops.
	Observer observe.Observer
}

// Agent serves probe requests on a worker node.
type Agent struct {
	node       string
	registry   *probe.Registry
	authn      auth.Authenticator
	authz      auth.Authorizer
	bulkhead   *resilience.Bulkhead
	timeout    *resilience.Timeout
	mw         *observe.Middleware
	logger     observe.Logger
	health     *health.Aggregator
	propagator propagation.TextMapPropagator
}

// NewAgent creates an agent.
func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Authenticator == nil {
		return nil, ErrNoAuthenticator
	}
	if cfg.Registry == nil {
		cfg.Registry = probe.DefaultRegistry
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = auth.NewSimpleRBACAuthorizer(auth.DefaultRBACConfig())
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}

	mw := observe.NewMiddleware(nil, nil, nil)
	if cfg.Observer != nil {
		var err error
		if mw, err = observe.MiddlewareFromObserver(cfg.Observer); err != nil {
			return nil, fmt.Errorf("remote: agent telemetry: %w", err)
		}
	}

	a := &Agent{
		node:       cfg.Node,
		registry:   cfg.Registry,
		authn:      cfg.Authenticator,
		authz:      cfg.Authorizer,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrent, 0),
		timeout:    resilience.NewTimeout(cfg.Timeout),
		mw:         mw,
		logger:     mw.Logger().With(observe.F("node.name", cfg.Node)),
		health:     health.NewAggregator(5 * time.Second),
		propagator: otel.GetTextMapPropagator(),
	}
	a.health.Register("memory", health.NewMemoryChecker(0, 0.9, 0.98))
	a.health.Register("probes", health.NewCheckerFunc("probes", func(context.Context) health.Result {
		kinds := a.registry.Kinds()
		if len(kinds) == 0 {
			return health.Unhealthy("no probes registered", health.ErrCheckFailed)
		}
		return health.Healthy(fmt.Sprintf("%d probes registered", len(kinds))).
			WithDetails(map[string]any{"kinds": kinds, "in_flight": a.bulkhead.InFlight()})
	}))

	return a, nil
}

// Health returns the agent's readiness checks.
func (a *Agent) Health() *health.Aggregator { return a.health }

// Handler returns the agent's HTTP routes.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()
	health.RegisterHandlers(mux, a.health)
	mux.Handle("POST "+ProbePath, auth.Middleware(a.authn, a.reject)(http.HandlerFunc(a.serveProbe)))
	return mux
}

// ListenAndServe serves the agent on addr until ctx is cancelled.
func (a *Agent) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("remote: listen %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves the agent on ln until ctx is cancelled.
func (a *Agent) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.logger.Info(ctx, "agent listening", observe.F("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (a *Agent) serveProbe(w http.ResponseWriter, r *http.Request) {
	ctx := a.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var spec probe.Spec
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	subject := auth.IdentityFromContext(ctx)
	if err := a.authz.Authorize(ctx, &auth.AuthzRequest{
		Subject:      subject,
		ResourceType: "probe",
		Resource:     spec.Kind,
		Action:       "run",
	}); err != nil {
		a.logger.Warn(ctx, "probe denied",
			observe.F("principal", auth.PrincipalFromContext(ctx)),
			observe.F("probe.kind", spec.Kind))
		a.writeError(w, http.StatusForbidden, err)
		return
	}

	p, err := a.registry.Build(spec)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, probe.ErrUnknownKind) {
			status = http.StatusNotFound
		}
		a.writeError(w, status, err)
		return
	}

	run := a.mw.Wrap(func(ctx context.Context, _ observe.ProbeMeta) (string, error) {
		var report string
		err := a.timeout.Execute(ctx, func(ctx context.Context) error {
			out, err := p.Call(ctx)
			if err != nil {
				return err
			}
			report = out
			return nil
		})
		if err != nil {
			return "", err
		}
		return report, nil
	})

	var report string
	err = a.bulkhead.Execute(ctx, func(ctx context.Context) error {
		var runErr error
		report, runErr = run(ctx, observe.ProbeMeta{
			Node:     a.node,
			NodeKind: "agent",
			Probe:    p.Kind(),
		})
		return runErr
	})

	switch {
	case err == nil:
		a.writeJSON(w, http.StatusOK, probeResponse{Report: report})
	case errors.Is(err, resilience.ErrBulkheadFull):
		a.writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, resilience.ErrTimeout):
		a.writeError(w, http.StatusGatewayTimeout, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *Agent) reject(w http.ResponseWriter, status int, err error) {
	fields := []observe.Field{observe.F("status", status), observe.F("error", err)}
	if auth.IsUnauthorized(err) {
		a.logger.Warn(context.Background(), "agent request rejected", fields...)
	} else {
		a.logger.Error(context.Background(), "agent authentication failed", fields...)
	}
	a.writeError(w, status, err)
}

func (a *Agent) writeError(w http.ResponseWriter, status int, err error) {
	a.writeJSON(w, status, probeResponse{Error: err.Error()})
}

func (a *Agent) writeJSON(w http.ResponseWriter, status int, body probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
