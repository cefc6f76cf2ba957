package bundle

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/nodediag/auth"
	"github.com/jonwraymond/nodediag/observe"
)

// ManifestPath is the archive entry describing the bundle itself.
const ManifestPath = "manifest.md"

// Manifest records what went into a bundle.
type Manifest struct {
	Generated time.Time

	// Components lists the display names of included components.
	Components []string

	// Skipped maps display names of excluded components to the reason.
	Skipped map[string]string

	// Files lists archive paths in write order, manifest excluded.
	Files []string

	// Failed maps paths (or component display names) to materialization errors.
	Failed map[string]string
}

// Builder writes bundles.
type Builder struct {
	authz  auth.Authorizer
	limit  int
	logger observe.Logger
	now    func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLimit bounds how many contents materialize at once.
// Default: GOMAXPROCS.
func WithLimit(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.limit = n
		}
	}
}

// WithLogger sets the builder's logger.
func WithLogger(l observe.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a builder that checks component permissions with authz.
func NewBuilder(authz auth.Authorizer, opts ...BuilderOption) *Builder {
	b := &Builder{
		authz:  authz,
		limit:  runtime.GOMAXPROCS(0),
		logger: observe.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build writes a zip archive of components to w.
//
// The caller's identity is taken from ctx (see auth.WithIdentity). Components
// the caller may not access are skipped and listed in the manifest. Contents
// that fail to materialize are written as an error line; only cancellation
// of ctx aborts the build.
func (b *Builder) Build(ctx context.Context, w io.Writer, components []Component) (*Manifest, error) {
	subject := auth.IdentityFromContext(ctx)
	if subject == nil {
		return nil, ErrNoSubject
	}

	m := &Manifest{
		Generated: b.now().UTC(),
		Skipped:   make(map[string]string),
		Failed:    make(map[string]string),
	}
	container := NewContainer()

	for _, comp := range components {
		err := b.authz.Authorize(ctx, &auth.AuthzRequest{
			Subject:      subject,
			ResourceType: "component",
			Resource:     comp.ID(),
			Action:       comp.Permission(),
		})
		if errors.Is(err, auth.ErrForbidden) {
			m.Skipped[comp.DisplayName()] = "missing permission " + comp.Permission()
			b.logger.Warn(ctx, "component skipped",
				observe.F("component", comp.ID()),
				observe.F("principal", subject.Principal),
				observe.F("permission", comp.Permission()))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("bundle: authorize %s: %w", comp.ID(), err)
		}

		if err := comp.AddContents(ctx, container); err != nil {
			m.Failed[comp.DisplayName()] = err.Error()
			b.logger.Warn(ctx, "component failed to add contents",
				observe.F("component", comp.ID()), observe.F("error", err))
			continue
		}
		m.Components = append(m.Components, comp.DisplayName())
	}

	contents := container.Contents()
	bodies, err := b.materialize(ctx, contents, m)
	if err != nil {
		return nil, err
	}

	zw := zip.NewWriter(w)
	if err := b.writeEntry(zw, ManifestPath, []byte(m.render())); err != nil {
		return nil, err
	}
	for i, c := range contents {
		if err := b.writeEntry(zw, c.Path(), bodies[i]); err != nil {
			return nil, err
		}
		m.Files = append(m.Files, c.Path())
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: close archive: %w", err)
	}

	b.logger.Info(ctx, "bundle written",
		observe.F("components", len(m.Components)),
		observe.F("files", len(m.Files)),
		observe.F("skipped", len(m.Skipped)))
	return m, nil
}

func (b *Builder) materialize(ctx context.Context, contents []Content, m *Manifest) ([][]byte, error) {
	bodies := make([][]byte, len(contents))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.limit)
	for i, c := range contents {
		g.Go(func() error {
			data, err := c.Bytes(gctx)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				m.Failed[c.Path()] = err.Error()
				mu.Unlock()
				data = []byte("error: " + err.Error() + "\n")
			}
			bodies[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bundle: materialize: %w", err)
	}
	return bodies, nil
}

func (b *Builder) writeEntry(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: b.now(),
	})
	if err != nil {
		return fmt.Errorf("bundle: create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("bundle: write %s: %w", name, err)
	}
	return nil
}

func (m *Manifest) render() string {
	var sb strings.Builder
	sb.WriteString("Support bundle\n==============\n\n")
	fmt.Fprintf(&sb, "Generated on %s\n\n", m.Generated.Format(time.RFC3339))

	sb.WriteString("Requested components:\n\n")
	for _, name := range m.Components {
		fmt.Fprintf(&sb, "  * %s\n", name)
	}

	if len(m.Skipped) > 0 {
		sb.WriteString("\nSkipped components:\n\n")
		for _, name := range sortedKeys(m.Skipped) {
			fmt.Fprintf(&sb, "  * %s: %s\n", name, m.Skipped[name])
		}
	}
	if len(m.Failed) > 0 {
		sb.WriteString("\nErrors:\n\n")
		for _, name := range sortedKeys(m.Failed) {
			fmt.Fprintf(&sb, "  * %s: %s\n", name, m.Failed[name])
		}
	}
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
