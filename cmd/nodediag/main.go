package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/jonwraymond/nodediag/auth"
	"github.com/jonwraymond/nodediag/bundle"
	"github.com/jonwraymond/nodediag/cache"
	"github.com/jonwraymond/nodediag/collector"
	"github.com/jonwraymond/nodediag/config"
	"github.com/jonwraymond/nodediag/health"
	"github.com/jonwraymond/nodediag/node"
	"github.com/jonwraymond/nodediag/observe"
	"github.com/jonwraymond/nodediag/probe"
	"github.com/jonwraymond/nodediag/remote"
	"github.com/jonwraymond/nodediag/resilience"
	"github.com/jonwraymond/nodediag/secret"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes.
const (
	exitSuccess = 0
	exitRuntime = 1
	exitSetup   = 2
)

// Globals are flags shared by every command.
type Globals struct {
	Config   []string `help:"Config file to load; may be repeated. Later files win." placeholder:"FILE"`
	LogLevel string   `help:"Override the log level (debug|info|warn|error)." placeholder:"LEVEL"`
	NoColor  bool     `help:"Disable colored output even if stdout is a TTY."`

	out io.Writer
}

// CLI is the top-level command structure for nodediag.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version." short:"V"`
	Bundle  BundleCmd        `cmd:"" help:"Collect network interface reports into a support bundle."`
	Agent   AgentCmd         `cmd:"" help:"Serve the worker agent."`
	Probe   ProbeCmd         `cmd:"" help:"Print the local network interface report."`
	Nodes   NodesCmd         `cmd:"" help:"Ping configured workers and show their status."`
}

// BundleCmd writes a support bundle.
type BundleCmd struct {
	Output string `short:"o" help:"Bundle file to write." default:"support-bundle.zip" type:"path"`
}

// AgentCmd serves the worker agent.
type AgentCmd struct {
	Name   string `help:"Worker name used in logs and spans." default:"${hostname}"`
	Listen string `help:"Listen address; overrides agent.listen."`
}

// ProbeCmd runs the network interface probe locally.
type ProbeCmd struct{}

// NodesCmd pings configured workers.
type NodesCmd struct {
	Watch bool `short:"w" help:"Keep pinging every monitor.interval until interrupted."`
}

// loadConfig loads layered config with env and flag overrides and validates it.
func (g *Globals) loadConfig() (*config.Config, error) {
	paths := g.Config
	if len(paths) == 0 {
		paths = config.DefaultPaths()
	}
	cfg, err := config.LoadLayered(paths...)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g *Globals) writer() io.Writer {
	if g.out != nil {
		return g.out
	}
	return os.Stdout
}

func (g *Globals) styles() styles {
	w := g.writer()
	color := false
	if f, ok := w.(*os.File); ok && !g.NoColor {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return newStyles(color)
}

func newObserver(ctx context.Context, cfg *config.Config) (observe.Observer, *observe.Middleware, error) {
	obs, err := observe.NewObserver(ctx, cfg.ObserveConfig(version))
	if err != nil {
		return nil, nil, err
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, nil, err
	}
	return obs, mw, nil
}

func newDialer(ctx context.Context, cfg *config.Config) (*remote.HTTPDialer, error) {
	var opts []remote.HTTPOption
	if len(cfg.Workers) > 0 {
		key, err := cfg.AgentKey(ctx, secret.NewResolver())
		if err != nil {
			return nil, err
		}
		signer, err := auth.NewSigner(key, auth.SignerConfig{
			Issuer:   cfg.Agent.Issuer,
			Audience: cfg.Agent.Audience,
			Subject:  cfg.Controller.Name,
			Roles:    []string{"controller"},
			TTL:      cfg.Agent.TokenTTL,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, remote.WithTokenSource(signer))
	}
	return remote.NewHTTPDialer(opts...), nil
}

// Run collects the bundle.
func (b *BundleCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return setupError("bundle", err)
	}
	obs, mw, err := newObserver(ctx, cfg)
	if err != nil {
		return setupError("bundle", err)
	}
	defer shutdown(obs)

	dialer, err := newDialer(ctx, cfg)
	if err != nil {
		return setupError("bundle", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		return setupError("bundle", err)
	}

	logger := obs.Logger()
	dispatcher := remote.NewDispatcher(dialer,
		remote.WithTimeout(cfg.Probe.Timeout),
		remote.WithRetry(resilience.RetryConfig{MaxAttempts: cfg.Probe.MaxAttempts, Jitter: true}),
		remote.WithBreakers(resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Probe.BreakerFailures,
			ResetTimeout: cfg.Probe.BreakerReset,
		}),
		remote.WithMiddleware(mw),
	)
	c := cache.New(dispatcher,
		cache.WithPolicy(cache.Policy{MaxStale: cfg.Probe.MaxStale}),
		cache.WithLogger(logger),
		cache.WithMetrics(mw.Metrics()),
		cache.WithCoalescing(),
	)
	c.Attach(reg)
	reg.OnRemove(func(n *node.Node) { dispatcher.Forget(n.Name()) })

	monitor := remote.NewMonitor(reg, dialer, cfg.Monitor.PingTimeout, remote.WithMonitorLogger(logger))
	monitor.CheckOnce(ctx)

	f, err := os.Create(b.Output)
	if err != nil {
		return setupError("bundle", err)
	}

	builder := bundle.NewBuilder(
		auth.NewSimpleRBACAuthorizer(auth.DefaultRBACConfig()),
		bundle.WithLimit(cfg.Bundle.Parallelism),
		bundle.WithLogger(logger),
	)
	ctx = auth.WithIdentity(ctx, auth.LocalIdentity(currentUser(), "admin"))
	manifest, err := builder.Build(ctx, f, []bundle.Component{collector.NewNetworkInterfaces(reg, c)})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(b.Output)
		return fmt.Errorf("bundle: %w", err)
	}

	printManifest(g.writer(), g.styles(), b.Output, manifest)
	return nil
}

// Run serves the agent until interrupted.
func (a *AgentCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return setupError("agent", err)
	}
	if a.Listen != "" {
		cfg.Agent.Listen = a.Listen
	}
	key, err := cfg.AgentKey(ctx, secret.NewResolver())
	if err != nil {
		return setupError("agent", err)
	}
	obs, err := observe.NewObserver(ctx, cfg.ObserveConfig(version))
	if err != nil {
		return setupError("agent", err)
	}
	defer shutdown(obs)

	agent, err := remote.NewAgent(remote.AgentConfig{
		Node: a.Name,
		Authenticator: auth.NewJWTAuthenticator(auth.JWTConfig{
			Issuer:   cfg.Agent.Issuer,
			Audience: cfg.Agent.Audience,
			Leeway:   5 * time.Second,
		}, key),
		MaxConcurrent: cfg.Agent.MaxConcurrent,
		Timeout:       cfg.Probe.Timeout,
		Observer:      obs,
	})
	if err != nil {
		return setupError("agent", err)
	}

	obs.Logger().Info(ctx, "agent listening", observe.F("addr", cfg.Agent.Listen), observe.F("node", a.Name))
	if err := agent.ListenAndServe(ctx, cfg.Agent.Listen); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("agent: %w", err)
	}
	return nil
}

// Run prints the local report.
func (p *ProbeCmd) Run(ctx context.Context, g *Globals) error {
	report, err := probe.NewNetworkInterfaces().Call(ctx)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	_, err = io.WriteString(g.writer(), report)
	return err
}

// Run pings every worker once and prints a status table.
func (n *NodesCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return setupError("nodes", err)
	}
	dialer, err := newDialer(ctx, cfg)
	if err != nil {
		return setupError("nodes", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		return setupError("nodes", err)
	}

	monitor := remote.NewMonitor(reg, dialer, cfg.Monitor.PingTimeout, remote.WithInterval(cfg.Monitor.Interval))
	printNodes(g.writer(), g.styles(), reg.Controller().Name(), monitor.CheckOnce(ctx))
	if !n.Watch {
		return nil
	}

	ticker := time.NewTicker(cfg.Monitor.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fmt.Fprintln(g.writer())
			printNodes(g.writer(), g.styles(), reg.Controller().Name(), monitor.CheckOnce(ctx))
		}
	}
}

func printManifest(w io.Writer, st styles, path string, m *bundle.Manifest) {
	fmt.Fprintf(w, "%s %s\n", st.ok.Render("wrote"), st.path.Render(path))
	for _, f := range m.Files {
		fmt.Fprintf(w, "  %s\n", st.path.Render(f))
	}
	for _, name := range sortedKeys(m.Skipped) {
		fmt.Fprintf(w, "  %s %s: %s\n", st.warn.Render("skipped"), name, m.Skipped[name])
	}
	for _, p := range sortedKeys(m.Failed) {
		fmt.Fprintf(w, "  %s %s: %s\n", st.fail.Render("failed"), p, m.Failed[p])
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printNodes(w io.Writer, st styles, controller string, results map[string]health.Result) {
	fmt.Fprintf(w, "%-20s %s\n", controller, st.ok.Render("controller"))
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := results[name]
		status := st.ok.Render(r.Status.String())
		if r.Status == health.StatusUnhealthy {
			status = st.fail.Render(r.Status.String())
		}
		line := fmt.Sprintf("%-20s %s", name, status)
		if r.Message != "" {
			line += " " + st.dim.Render(r.Message)
		}
		fmt.Fprintln(w, line)
	}
}

// styles holds the terminal styles; all are plain when color is off.
type styles struct {
	ok, warn, fail, path, dim lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{ok: plain, warn: plain, fail: plain, path: plain, dim: plain}
	}
	return styles{
		ok:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warn: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		fail: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		path: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"}),
		dim:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

// setupErr marks failures that happen before any work starts.
type setupErr struct {
	cmd string
	err error
}

func (e *setupErr) Error() string { return e.cmd + ": " + e.err.Error() }
func (e *setupErr) Unwrap() error { return e.err }

func setupError(cmd string, err error) error { return &setupErr{cmd: cmd, err: err} }

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var se *setupErr
	if errors.As(err, &se) {
		return exitSetup
	}
	return exitRuntime
}

func shutdown(obs observe.Observer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = obs.Shutdown(ctx)
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "nodediag"
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return filepath.Base(h)
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	base := []kong.Option{
		kong.Name("nodediag"),
		kong.Description("Collect per-node network interface diagnostics."),
		kong.Vars{
			"version":  version + " " + commit + " " + date,
			"hostname": hostname(),
		},
		kong.Bind(&cli.Globals),
	}
	return kong.New(cli, append(base, opts...)...)
}

// run parses args and executes the selected command, writing output to out.
func run(ctx context.Context, args []string, out io.Writer, opts ...kong.Option) error {
	cli := CLI{Globals: Globals{out: out}}
	parser, err := newParser(&cli, opts...)
	if err != nil {
		return setupError("nodediag", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		var pe *kong.ParseError
		if errors.As(err, &pe) {
			_ = pe.Context.PrintUsage(true)
		}
		return setupError("nodediag", err)
	}
	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
