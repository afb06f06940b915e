// Package privacy evaluates read policies on collections before their SQL
// is finalized.
//
// A QueryPolicy is an ordered list of rules. Each rule returns Allow, Deny
// or Skip:
//
//   - Allow grants access and stops evaluation
//   - Deny rejects the read and stops evaluation
//   - Skip continues with the next rule
//
// A policy where every rule skips allows the read. Rules may also restrict
// the collection they inspect, which is how TenantScopeRule narrows admin
// reads to the viewer's stores:
//
//	filter := scope.NewFilter(cache)
//	policy := privacy.QueryPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("administrator"),
//	    privacy.TenantScopeRule(filter),
//	}
//	blocks, _ := collection.New(drv, "cms_block", collection.WithPolicy(policy))
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID: "42",
//	    Access: scope.RestrictedTo([]int{1, 2}, []int{1}),
//	})
//	rows, err := blocks.Load(ctx)
//
// Since the policy runs on every read of a collection, rules that add
// predicates should be idempotent. The scope filter is, through the
// tenant_scope_filtered flag.
package privacy
