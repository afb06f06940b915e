package privacy_test

import (
	"context"
	"errors"
	"testing"

	"entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/stageview/privacy"
	"github.com/syssam/stageview/scope"
)

type fakeCollection struct {
	table    string
	flags    map[string]any
	selector *sql.Selector
	target   scope.Target
}

func newFakeCollection(table string) *fakeCollection {
	return &fakeCollection{
		table:    table,
		flags:    map[string]any{},
		selector: sql.Select().From(sql.Table(table).As("main_table")),
	}
}

func (c *fakeCollection) Table() string              { return c.table }
func (c *fakeCollection) Flag(name string) any       { return c.flags[name] }
func (c *fakeCollection) SetFlag(name string, v any) { c.flags[name] = v }
func (c *fakeCollection) ScopeTarget() scope.Target  { return c.target }

func (c *fakeCollection) WhereP(ps ...func(*sql.Selector)) {
	for _, p := range ps {
		p(c.selector)
	}
}

// bare has no WhereP.
type bare struct{}

func (bare) Flag(string) any           { return nil }
func (bare) SetFlag(string, any)       {}
func (bare) ScopeTarget() scope.Target { return nil }

func TestDecisions(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"allowf", privacy.Allowf("admin %s", "42"), privacy.Allow},
		{"denyf", privacy.Denyf("store %d", 3), privacy.Deny},
		{"skipf", privacy.Skipf("no viewer"), privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.target)
			for _, other := range []error{privacy.Allow, privacy.Deny, privacy.Skip} {
				if other != tt.target {
					assert.NotErrorIs(t, tt.err, other)
				}
			}
		})
	}
	assert.Equal(t, "store 3: stageview/privacy: deny rule", privacy.Denyf("store %d", 3).Error())
}

func TestQueryPolicy(t *testing.T) {
	ctx := context.Background()
	q := newFakeCollection("cms_block")
	custom := errors.New("custom")

	tests := []struct {
		name   string
		policy privacy.QueryPolicy
		check  func(t *testing.T, err error)
	}{
		{
			name:   "empty",
			policy: nil,
			check:  func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:   "all skip",
			policy: privacy.QueryPolicy{privacy.ContextQueryRule(func(context.Context) error { return nil }), privacy.ContextQueryRule(func(context.Context) error { return privacy.Skip })},
			check:  func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:   "allow stops",
			policy: privacy.QueryPolicy{privacy.AlwaysAllowRule(), privacy.AlwaysDenyRule()},
			check:  func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:   "deny stops",
			policy: privacy.QueryPolicy{privacy.AlwaysDenyRule(), privacy.AlwaysAllowRule()},
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, privacy.Deny) },
		},
		{
			name: "error stops",
			policy: privacy.QueryPolicy{privacy.QueryRuleFunc(func(context.Context, scope.Collection) error {
				return custom
			}), privacy.AlwaysAllowRule()},
			check: func(t *testing.T, err error) { assert.Same(t, custom, err) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.policy.EvalQuery(ctx, q))
		})
	}
}

func TestDecisionContext(t *testing.T) {
	ctx := context.Background()
	q := newFakeCollection("cms_block")
	deny := privacy.QueryPolicy{privacy.AlwaysDenyRule()}

	assert.Equal(t, ctx, privacy.DecisionContext(ctx, nil))
	assert.Equal(t, ctx, privacy.DecisionContext(ctx, privacy.Skip))

	allowed := privacy.DecisionContext(ctx, privacy.Allow)
	decision, ok := privacy.DecisionFromContext(allowed)
	require.True(t, ok)
	assert.NoError(t, decision)
	assert.NoError(t, deny.EvalQuery(allowed, q))

	denied := privacy.DecisionContext(ctx, privacy.Denyf("maintenance"))
	assert.ErrorIs(t, privacy.QueryPolicy{privacy.AlwaysAllowRule()}.EvalQuery(denied, q), privacy.Deny)

	_, ok = privacy.DecisionFromContext(ctx)
	assert.False(t, ok)
}

func TestOnTables(t *testing.T) {
	ctx := context.Background()
	rule := privacy.OnTables(privacy.AlwaysDenyRule(), "sales_order", "sales_invoice")

	assert.ErrorIs(t, rule.EvalQuery(ctx, newFakeCollection("sales_order")), privacy.Deny)
	assert.ErrorIs(t, rule.EvalQuery(ctx, newFakeCollection("cms_block")), privacy.Skip)
	assert.ErrorIs(t, rule.EvalQuery(ctx, bare{}), privacy.Skip)
}

func TestFilterFunc(t *testing.T) {
	ctx := context.Background()
	rule := privacy.FilterFunc(func(_ context.Context, f privacy.Filter) error {
		f.WhereP(sql.FieldEQ("is_active", 1))
		return privacy.Skip
	})

	q := newFakeCollection("cms_block")
	require.NoError(t, privacy.QueryPolicy{rule}.EvalQuery(ctx, q))
	query, args := q.selector.Query()
	assert.Equal(t, "SELECT * FROM `cms_block` AS `main_table` WHERE `main_table`.`is_active` = ?", query)
	assert.Equal(t, []any{1}, args)

	err := rule.EvalQuery(ctx, bare{})
	assert.ErrorIs(t, err, privacy.Deny)
	assert.Contains(t, err.Error(), "does not support filtering")
}
