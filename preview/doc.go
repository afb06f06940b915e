// Package preview materializes staged category/product index data for a
// store and redirects reads of the live index shard to it.
//
// A Materializer resolves the root category, collects its candidate products,
// lets a DatasetBuilder fill the per-store temporary table and installs the
// redirect in a tablemap.Registry:
//
//	m := preview.NewMaterializer(repo, candidates, builder, index.NewScopeResolver(), reg)
//	err := m.Session(ctx, rootID, storeID, func(ctx context.Context) error {
//	    return loadTree(ctx)
//	})
//
// Session releases the redirect on every exit path. Reindex installs it and
// leaves teardown to the caller.
package preview
