// Package scope restricts collection reads to the stores and websites of the
// caller.
//
// A Filter is applied to every collection before its SQL is finalized. It
// marks the collection with FilteredFlag so repeated calls from the load and
// count paths inject the predicate once.
//
//	f := scope.NewFilter(cache)
//	if err := f.Apply(ctx, c, scope.RestrictedTo([]int{1}, []int{1})); err != nil {
//	    return err
//	}
package scope
