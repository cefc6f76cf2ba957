package bundle

import "context"

// Component contributes diagnostic files to a bundle.
//
// Contract:
// - Concurrency: AddContents may run concurrently with other components.
// - Contents added must be safe to materialize concurrently.
type Component interface {
	// ID is a stable identifier, used for authorization.
	ID() string

	// DisplayName is the operator-facing name.
	DisplayName() string

	// Permission is the action the caller must be allowed on this component.
	Permission() string

	// AddContents registers the component's files.
	AddContents(ctx context.Context, c *Container) error
}
