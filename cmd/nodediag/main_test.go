package main

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"

	"github.com/jonwraymond/nodediag/auth"
	"github.com/jonwraymond/nodediag/probe"
	"github.com/jonwraymond/nodediag/remote"
)

// errExitCalled is a sentinel used to catch kong's os.Exit calls in tests.
var errExitCalled = errors.New("exit called")

const testKey = "cli-test-key"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nodediag.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func startAgent(t *testing.T, iface string) *httptest.Server {
	t.Helper()
	probes := probe.NewRegistry()
	if err := probes.Register(probe.KindNetworkInterfaces, func(map[string]string) (probe.Probe, error) {
		return probe.NewNetworkInterfaces(probe.WithInterfaceLister(func() ([]probe.Interface, error) {
			return []probe.Interface{{Name: iface, HardwareAddr: []byte{0x02, 0, 0, 0, 0, 0x01}, Index: 3, MTU: 9000, Up: true}}, nil
		})), nil
	}); err != nil {
		t.Fatal(err)
	}
	agent, err := remote.NewAgent(remote.AgentConfig{
		Node:     "A",
		Registry: probes,
		Authenticator: auth.NewJWTAuthenticator(auth.JWTConfig{
			Issuer:   "nodediag",
			Audience: "nodediag-agent",
		}, []byte(testKey)),
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(agent.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer zr.Close()
	files := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		files[f.Name] = string(data)
	}
	return files
}

func TestVersionFlag(t *testing.T) {
	var buf bytes.Buffer
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic from --version flag")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, errExitCalled) {
			panic(r)
		}
		if !strings.Contains(buf.String(), version) {
			t.Errorf("version output = %q, want to contain %q", buf.String(), version)
		}
	}()

	_ = run(context.Background(), []string{"--version"}, &buf,
		kong.Writers(&buf, &buf),
		kong.Exit(func(int) { panic(errExitCalled) }),
	)
}

func TestNoArgsIsSetupError(t *testing.T) {
	var buf bytes.Buffer
	err := run(context.Background(), nil, &buf, kong.Writers(&buf, &buf))
	if err == nil {
		t.Fatal("expected error when no command provided")
	}
	if got := exitCode(err); got != exitSetup {
		t.Errorf("exitCode = %d, want %d", got, exitSetup)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitSuccess},
		{"setup", setupError("bundle", errors.New("bad config")), exitSetup},
		{"wrapped setup", fmt.Errorf("outer: %w", setupError("agent", io.EOF)), exitSetup},
		{"runtime", errors.New("boom"), exitRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestProbeCommand(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), []string{"probe"}, &buf); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestBundleCommand_InvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "probe:\n  timeout: 0s\n")
	var buf bytes.Buffer
	err := run(context.Background(), []string{"--config", cfg, "bundle", "-o", filepath.Join(t.TempDir(), "b.zip")}, &buf)
	if err == nil {
		t.Fatal("bundle with invalid config should fail")
	}
	if got := exitCode(err); got != exitSetup {
		t.Errorf("exitCode = %d, want %d", got, exitSetup)
	}
}

func TestBundleCommand_ControllerOnly(t *testing.T) {
	cfg := writeConfig(t, "log:\n  level: error\n")
	out := filepath.Join(t.TempDir(), "bundle.zip")

	var buf bytes.Buffer
	if err := run(context.Background(), []string{"--config", cfg, "bundle", "-o", out}, &buf); err != nil {
		t.Fatalf("bundle: %v", err)
	}

	files := readZip(t, out)
	if _, ok := files["manifest.md"]; !ok {
		t.Errorf("bundle lacks manifest.md: %v", files)
	}
	if _, ok := files["nodes/master/networkInterface.md"]; !ok {
		t.Errorf("bundle lacks controller report: %v", files)
	}
	if !strings.Contains(buf.String(), "nodes/master/networkInterface.md") {
		t.Errorf("output = %q, want file listing", buf.String())
	}
}

func TestBundleCommand_WithWorkers(t *testing.T) {
	srv := startAgent(t, "eth-cli-a")
	cfg := writeConfig(t, fmt.Sprintf(`
controller:
  name: master
workers:
  - name: A
    address: %s
  - name: B
    address: 127.0.0.1:1
agent:
  key: %s
monitor:
  ping_timeout: 2s
log:
  level: error
`, srv.URL, testKey))
	out := filepath.Join(t.TempDir(), "bundle.zip")

	var buf bytes.Buffer
	if err := run(context.Background(), []string{"--config", cfg, "bundle", "-o", out}, &buf); err != nil {
		t.Fatalf("bundle: %v", err)
	}

	files := readZip(t, out)
	if got := files["nodes/slave/A/networkInterface.md"]; !strings.Contains(got, " * Name eth-cli-a") {
		t.Errorf("worker A report = %q", got)
	}
	if got := files["nodes/slave/B/networkInterface.md"]; got != "N/A: No connection to node, or no cache." {
		t.Errorf("worker B report = %q, want fallback", got)
	}
}

func TestBundleCommand_WorkersNeedKey(t *testing.T) {
	cfg := writeConfig(t, "workers:\n  - name: A\n    address: 127.0.0.1:1\n")
	var buf bytes.Buffer
	err := run(context.Background(), []string{"--config", cfg, "bundle", "-o", filepath.Join(t.TempDir(), "b.zip")}, &buf)
	if err == nil || !strings.Contains(err.Error(), "agent.key") {
		t.Fatalf("err = %v, want missing agent.key", err)
	}
}

func TestNodesCommand(t *testing.T) {
	srv := startAgent(t, "eth0")
	cfg := writeConfig(t, fmt.Sprintf(`
workers:
  - name: up
    address: %s
  - name: down
    address: 127.0.0.1:1
agent:
  key: %s
monitor:
  ping_timeout: 2s
`, srv.URL, testKey))

	var buf bytes.Buffer
	if err := run(context.Background(), []string{"--config", cfg, "--no-color", "nodes"}, &buf); err != nil {
		t.Fatalf("nodes: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output = %q, want controller plus two workers", buf.String())
	}
	if !strings.HasPrefix(lines[0], "master") {
		t.Errorf("first line = %q, want controller", lines[0])
	}
	if !strings.HasPrefix(lines[1], "down") || !strings.Contains(lines[1], "unhealthy") {
		t.Errorf("down line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "up") || strings.Contains(lines[2], "unhealthy") {
		t.Errorf("up line = %q", lines[2])
	}
}

func TestNodesCommand_WatchStopsOnCancel(t *testing.T) {
	cfg := writeConfig(t, "monitor:\n  interval: 10ms\n")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var buf bytes.Buffer
	go func() { done <- run(ctx, []string{"--config", cfg, "nodes", "--watch"}, &buf) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("nodes --watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nodes --watch did not stop after cancel")
	}
}

func TestNewStyles_PlainWithoutColor(t *testing.T) {
	st := newStyles(false)
	if got := st.fail.Render("failed"); got != "failed" {
		t.Errorf("plain render = %q", got)
	}
}
