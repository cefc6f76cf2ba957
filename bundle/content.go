package bundle

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
)

// Content is one file of the bundle, produced on demand.
type Content interface {
	// Path is the slash-separated path inside the archive.
	Path() string

	// Bytes materializes the file.
	Bytes(ctx context.Context) ([]byte, error)
}

type textContent struct {
	path string
	fn   func(ctx context.Context) string
}

// Text returns a Content whose body is produced by fn at materialization time.
func Text(path string, fn func(ctx context.Context) string) Content {
	return &textContent{path: path, fn: fn}
}

func (c *textContent) Path() string { return c.path }

func (c *textContent) Bytes(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte(c.fn(ctx)), nil
}

// ValidatePath rejects empty, absolute and parent-escaping paths.
func ValidatePath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	if clean := path.Clean(p); clean != p || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return nil
}

// Container collects the contents contributed by components.
type Container struct {
	mu       sync.Mutex
	contents []Content
	paths    map[string]bool
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{paths: make(map[string]bool)}
}

// Add appends c. Paths must be valid and unique.
func (ct *Container) Add(c Content) error {
	p := c.Path()
	if err := ValidatePath(p); err != nil {
		return err
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.paths[p] {
		return fmt.Errorf("%w: %q", ErrDuplicatePath, p)
	}
	ct.paths[p] = true
	ct.contents = append(ct.contents, c)
	return nil
}

// Contents returns the contents in insertion order.
func (ct *Container) Contents() []Content {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return append([]Content(nil), ct.contents...)
}

// Len returns the number of contents.
func (ct *Container) Len() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.contents)
}
