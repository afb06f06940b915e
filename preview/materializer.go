package preview

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/syssam/stageview"
	"github.com/syssam/stageview/index"
	"github.com/syssam/stageview/tablemap"
)

// Materializer computes the preview dataset of a root category and
// redirects the store shard of the index to it.
type Materializer struct {
	repo       EntityRepository
	candidates CandidateLookup
	dataset    DatasetBuilder
	resolver   index.Resolver
	registry   *tablemap.Registry
	table      string
	log        *slog.Logger
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithIndexTable sets the logical index table. Default is index.MainTable.
func WithIndexTable(name string) Option {
	return func(m *Materializer) {
		m.table = name
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Materializer) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMaterializer returns a Materializer. The resolver must resolve
// dimensions only; a resolver consulting reg would resolve the live shard to
// an installed redirect.
func NewMaterializer(repo EntityRepository, candidates CandidateLookup, dataset DatasetBuilder, r index.Resolver, reg *tablemap.Registry, opts ...Option) *Materializer {
	m := &Materializer{
		repo:       repo,
		candidates: candidates,
		dataset:    dataset,
		resolver:   r,
		registry:   reg,
		table:      index.MainTable,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reindex materializes the preview of rootID for storeID and installs the
// redirect from the live store shard to the temporary table. A missing root
// category is a no-op. The redirect stays installed until the caller clears
// it; an uncleared redirect makes the next Reindex of the same shard fail
// with *stageview.AlreadyMappedError.
func (m *Materializer) Reindex(ctx context.Context, rootID, storeID int) error {
	live, tmp, ok, err := m.materialize(ctx, rootID, storeID)
	if err != nil || !ok {
		return err
	}
	if err := m.registry.Set(live, tmp); err != nil {
		return err
	}
	m.log.InfoContext(ctx, "preview redirect installed", "root", rootID, "store", storeID, "table", live, "override", tmp)
	return nil
}

// Session materializes the preview like Reindex and runs fn with the
// redirect installed. The redirect is released when Session returns, on
// every path. If the root category is missing, fn runs without a redirect.
func (m *Materializer) Session(ctx context.Context, rootID, storeID int, fn func(context.Context) error) error {
	id := uuid.NewString()
	ctx = context.WithValue(ctx, sessionKey{}, id)
	live, tmp, ok, err := m.materialize(ctx, rootID, storeID)
	if err != nil {
		return err
	}
	if !ok {
		return fn(ctx)
	}
	release, err := m.registry.Acquire(live, tmp)
	if err != nil {
		return err
	}
	defer func() {
		release()
		m.log.DebugContext(ctx, "preview session closed", "session", id, "table", live)
	}()
	m.log.DebugContext(ctx, "preview session opened", "session", id, "table", live, "override", tmp)
	return fn(ctx)
}

// materialize runs the dataset builder and returns the live shard and its
// temporary table. The requested store is always built, even when it does
// not belong to a store group of the root category. ok is false if the root
// category does not exist.
func (m *Materializer) materialize(ctx context.Context, rootID, storeID int) (live, tmp string, ok bool, err error) {
	category, err := m.repo.Get(ctx, rootID)
	if stageview.IsNotFound(err) {
		m.log.DebugContext(ctx, "preview root category not found", "root", rootID)
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	ids, err := m.candidates.ProductIDs(ctx, category.ID)
	if err != nil {
		return "", "", false, err
	}
	if err := m.dataset.Execute(ctx, category.ID, ids, storeID); err != nil {
		return "", "", false, err
	}
	live = m.resolver.Resolve(m.table, index.StoreDimension(storeID))
	tmp = m.dataset.TemporaryTable(storeID)
	return live, tmp, true, nil
}

type sessionKey struct{}

// SessionID returns the id of the preview session running ctx.
func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok
}

var _ Reindexer = (*Materializer)(nil)
