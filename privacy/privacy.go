package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"entgo.io/ent/dialect/sql"

	"github.com/syssam/stageview/scope"
)

// Policy decision sentinel errors. Use errors.Is to check for them:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("stageview/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("stageview/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("stageview/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// QueryRule decides whether a collection may be read and may restrict it.
type QueryRule interface {
	EvalQuery(context.Context, scope.Collection) error
}

// QueryRuleFunc type is an adapter which allows the use of
// ordinary functions as query rules.
type QueryRuleFunc func(context.Context, scope.Collection) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q scope.Collection) error {
	return f(ctx, q)
}

// QueryPolicy combines multiple query rules into a single policy.
//
// Rules run in order. The first Allow ends the evaluation with a nil error,
// the first Deny or other error ends it with that error, and Skip or nil
// moves to the next rule. A policy where every rule skips allows the read.
type QueryPolicy []QueryRule

// EvalQuery evaluates the rules of the policy against q. A decision stored
// in the context with DecisionContext takes precedence over the rules.
func (policy QueryPolicy) EvalQuery(ctx context.Context, q scope.Collection) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range policy {
		switch decision := rule.EvalQuery(ctx, q); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// OnTables evaluates rule only on collections reading one of the logical
// tables. Other collections skip.
func OnTables(rule QueryRule, tables ...string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, q scope.Collection) error {
		t, ok := q.(interface{ Table() string })
		if !ok || !slices.Contains(tables, t.Table()) {
			return Skip
		}
		return rule.EvalQuery(ctx, q)
	})
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryRule {
	return fixedDecision{Deny}
}

// ContextQueryRule creates a query rule from a context evaluation function.
// Returning nil is equivalent to returning Skip.
func ContextQueryRule(eval func(context.Context) error) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, _ scope.Collection) error {
		return eval(ctx)
	})
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attached to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
// An Allow decision is reported as a nil error.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, scope.Collection) error {
	return f.decision
}

// Filter is the interface that wraps the WhereP method for restricting
// collections with storage-level predicates.
type Filter interface {
	WhereP(...func(*sql.Selector))
}

// FilterFunc is an adapter that allows using ordinary functions as
// query rules that apply predicates to a collection.
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//	    f.WhereP(sql.FieldEQ("is_active", 1))
//	    return privacy.Skip
//	})
type FilterFunc func(context.Context, Filter) error

// EvalQuery calls f(ctx, q) if the collection accepts predicates.
func (f FilterFunc) EvalQuery(ctx context.Context, q scope.Collection) error {
	fr, ok := q.(Filter)
	if !ok {
		return Denyf("stageview/privacy: collection type %T does not support filtering", q)
	}
	return f(ctx, fr)
}

var _ QueryRule = FilterFunc(nil)
