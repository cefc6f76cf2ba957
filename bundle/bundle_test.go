package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jonwraymond/nodediag/auth"
)

// staticComponent adds fixed contents.
type staticComponent struct {
	id, name, perm string
	contents       []Content
	addErr         error
}

func (c *staticComponent) ID() string          { return c.id }
func (c *staticComponent) DisplayName() string { return c.name }
func (c *staticComponent) Permission() string  { return c.perm }

func (c *staticComponent) AddContents(_ context.Context, ct *Container) error {
	if c.addErr != nil {
		return c.addErr
	}
	for _, content := range c.contents {
		if err := ct.Add(content); err != nil {
			return err
		}
	}
	return nil
}

type failingContent struct{ path string }

func (f failingContent) Path() string { return f.path }
func (f failingContent) Bytes(context.Context) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		out[f.Name] = string(body)
	}
	return out
}

func adminCtx() context.Context {
	return auth.WithIdentity(context.Background(), auth.LocalIdentity("operator", "admin"))
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path  string
		valid bool
	}{
		{"nodes/master/networkInterface.md", true},
		{"manifest.md", true},
		{"", false},
		{"/etc/passwd", false},
		{"../escape", false},
		{"a/../../b", false},
		{"a//b", false},
		{`a\b`, false},
		{".", false},
	}
	for _, tt := range tests {
		err := ValidatePath(tt.path)
		if tt.valid && err != nil {
			t.Errorf("ValidatePath(%q) = %v, want nil", tt.path, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidPath) {
			t.Errorf("ValidatePath(%q) = %v, want ErrInvalidPath", tt.path, err)
		}
	}
}

func TestContainer_AddRejectsDuplicates(t *testing.T) {
	ct := NewContainer()
	c := Text("a.md", func(context.Context) string { return "" })
	if err := ct.Add(c); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := ct.Add(c); !errors.Is(err, ErrDuplicatePath) {
		t.Errorf("second Add() error = %v, want ErrDuplicatePath", err)
	}
	if ct.Len() != 1 || len(ct.Contents()) != 1 {
		t.Errorf("Len() = %d, want 1", ct.Len())
	}
}

func TestBuilder_WritesLazyContents(t *testing.T) {
	var materialized atomic.Int32
	lazy := func(body string) func(context.Context) string {
		return func(context.Context) string {
			materialized.Add(1)
			return body
		}
	}
	comp := &staticComponent{
		id: "net", name: "Networking Interface", perm: auth.PermAdminister,
		contents: []Content{
			Text("nodes/master/networkInterface.md", lazy("master report")),
			Text("nodes/slave/a/networkInterface.md", lazy("a report")),
		},
	}

	b := NewBuilder(auth.NewSimpleRBACAuthorizer(auth.DefaultRBACConfig()), WithLimit(2))
	ct := NewContainer()
	if err := comp.AddContents(context.Background(), ct); err != nil {
		t.Fatal(err)
	}
	if materialized.Load() != 0 {
		t.Fatal("contents materialized when added")
	}

	var buf bytes.Buffer
	m, err := b.Build(adminCtx(), &buf, []Component{comp})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	files := readZip(t, buf.Bytes())

	if files["nodes/master/networkInterface.md"] != "master report" {
		t.Errorf("master entry = %q", files["nodes/master/networkInterface.md"])
	}
	if files["nodes/slave/a/networkInterface.md"] != "a report" {
		t.Errorf("worker entry = %q", files["nodes/slave/a/networkInterface.md"])
	}
	if !strings.Contains(files[ManifestPath], "  * Networking Interface") {
		t.Errorf("manifest = %q", files[ManifestPath])
	}
	if len(m.Files) != 2 || len(m.Components) != 1 {
		t.Errorf("manifest = %+v", m)
	}
}

func TestBuilder_SkipsForbiddenComponents(t *testing.T) {
	comp := &staticComponent{
		id: "net", name: "Networking Interface", perm: auth.PermAdminister,
		contents: []Content{Text("x.md", func(context.Context) string { return "x" })},
	}
	b := NewBuilder(auth.NewSimpleRBACAuthorizer(auth.DefaultRBACConfig()))
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Principal: "ctl", Roles: []string{"controller"}})

	var buf bytes.Buffer
	m, err := b.Build(ctx, &buf, []Component{comp})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	files := readZip(t, buf.Bytes())
	if _, ok := files["x.md"]; ok {
		t.Error("forbidden component's contents were written")
	}
	if m.Skipped["Networking Interface"] == "" {
		t.Errorf("Skipped = %v, want Networking Interface", m.Skipped)
	}
	if !strings.Contains(files[ManifestPath], "Skipped components") {
		t.Errorf("manifest = %q", files[ManifestPath])
	}
}

func TestBuilder_RecordsFailures(t *testing.T) {
	comps := []Component{
		&staticComponent{id: "broken", name: "Broken", perm: "x", addErr: errors.New("cannot list")},
		&staticComponent{id: "flaky", name: "Flaky", perm: "x", contents: []Content{failingContent{path: "flaky.md"}}},
	}
	var buf bytes.Buffer
	m, err := NewBuilder(auth.AllowAllAuthorizer{}).Build(adminCtx(), &buf, comps)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	files := readZip(t, buf.Bytes())
	if files["flaky.md"] != "error: disk on fire\n" {
		t.Errorf("flaky.md = %q", files["flaky.md"])
	}
	if m.Failed["Broken"] != "cannot list" || m.Failed["flaky.md"] != "disk on fire" {
		t.Errorf("Failed = %v", m.Failed)
	}
}

func TestBuilder_Errors(t *testing.T) {
	b := NewBuilder(auth.AllowAllAuthorizer{})
	if _, err := b.Build(context.Background(), io.Discard, nil); !errors.Is(err, ErrNoSubject) {
		t.Errorf("Build() without identity error = %v, want ErrNoSubject", err)
	}

	ctx, cancel := context.WithCancel(adminCtx())
	cancel()
	comp := &staticComponent{id: "c", name: "C", perm: "x",
		contents: []Content{Text("c.md", func(context.Context) string { return "c" })}}
	if _, err := b.Build(ctx, io.Discard, []Component{comp}); !errors.Is(err, context.Canceled) {
		t.Errorf("Build() with cancelled ctx error = %v, want context.Canceled", err)
	}

	boom := errors.New("policy store down")
	broken := NewBuilder(auth.AuthorizerFunc(func(context.Context, *auth.AuthzRequest) error { return boom }))
	if _, err := broken.Build(adminCtx(), io.Discard, []Component{comp}); !errors.Is(err, boom) {
		t.Errorf("Build() with failing authorizer error = %v, want %v", err, boom)
	}
}
