package preview

import (
	"context"

	"github.com/syssam/stageview"
)

// Mode reports whether a request reads staged content.
type Mode interface {
	IsPreview(ctx context.Context) bool
}

// The ModeFunc type is an adapter to allow the use of an ordinary function
// as a Mode.
type ModeFunc func(context.Context) bool

// IsPreview calls f(ctx).
func (f ModeFunc) IsPreview(ctx context.Context) bool {
	return f(ctx)
}

type versionKey struct{}

// WithVersion returns a context previewing the given staging version.
func WithVersion(ctx context.Context, version int64) context.Context {
	return context.WithValue(ctx, versionKey{}, version)
}

// VersionFrom returns the staging version previewed by ctx.
func VersionFrom(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(versionKey{}).(int64)
	return v, ok
}

// ContextMode is the Mode driven by WithVersion.
var ContextMode Mode = ModeFunc(func(ctx context.Context) bool {
	_, ok := VersionFrom(ctx)
	return ok
})

// PlacementGuard rejects order placement while previewing.
type PlacementGuard struct {
	mode Mode
}

// NewPlacementGuard returns a guard using mode. A nil mode means ContextMode.
func NewPlacementGuard(mode Mode) *PlacementGuard {
	if mode == nil {
		mode = ContextMode
	}
	return &PlacementGuard{mode: mode}
}

// Check returns a *stageview.PreviewModeError in preview mode.
func (g *PlacementGuard) Check(ctx context.Context) error {
	if g.mode.IsPreview(ctx) {
		return &stageview.PreviewModeError{Op: "order"}
	}
	return nil
}

// Place runs place unless ctx is in preview mode.
func (g *PlacementGuard) Place(ctx context.Context, place func(context.Context) error) error {
	if err := g.Check(ctx); err != nil {
		return err
	}
	return place(ctx)
}
