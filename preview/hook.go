package preview

import "context"

// Reindexer materializes the preview of a root category for a store.
type Reindexer interface {
	Reindex(ctx context.Context, rootID, storeID int) error
}

// TreeHook runs before category tree reads and refreshes the preview index
// when the request is in preview mode.
type TreeHook struct {
	mode      Mode
	reindexer Reindexer
}

// NewTreeHook returns a hook. A nil mode means ContextMode.
func NewTreeHook(mode Mode, r Reindexer) *TreeHook {
	if mode == nil {
		mode = ContextMode
	}
	return &TreeHook{mode: mode, reindexer: r}
}

// BeforeGetTree is called before a category tree is loaded.
func (h *TreeHook) BeforeGetTree(ctx context.Context, rootID, storeID int) error {
	if !h.mode.IsPreview(ctx) {
		return nil
	}
	return h.reindexer.Reindex(ctx, rootID, storeID)
}

// BeforeGetFilteredTree is called before a filtered category tree is loaded.
// The filter criteria do not affect the preview dataset.
func (h *TreeHook) BeforeGetFilteredTree(ctx context.Context, rootID int, _ map[string]any, storeID int) error {
	return h.BeforeGetTree(ctx, rootID, storeID)
}
