package scope

import (
	"entgo.io/ent/dialect/sql"

	"github.com/syssam/stageview/schema"
)

// FilteredFlag marks a collection that already went through the filter.
const FilteredFlag = "tenant_scope_filtered"

// Collection is a pending query against one main table, as seen by the filter.
type Collection interface {
	// Flag returns the value of the flag, or nil if unset.
	Flag(name string) any
	// SetFlag sets the flag value.
	SetFlag(name string, v any)
	// ScopeTarget returns how the collection is scoped. The target is
	// chosen once when the collection is constructed.
	ScopeTarget() Target
}

// Target is the scoping strategy of a collection. It is implemented by
// SelfScoping and GenericTable only.
type Target interface {
	target()
}

// StoreFilterer is implemented by collections that know how to restrict
// themselves to a set of stores.
type StoreFilterer interface {
	AddStoreFilter(storeIDs []int)
}

// SelfScoping delegates scoping to the collection's own store filter.
type SelfScoping struct {
	Filterer StoreFilterer
}

// GenericTable is scoped by inspecting the columns of its main table and
// appending a predicate to its selector.
type GenericTable struct {
	// MainTable is the physical table the collection reads.
	MainTable string
	// Describer introspects MainTable on a column cache miss.
	Describer schema.Describer
	// Selector receives the scoping predicate.
	Selector *sql.Selector
}

func (SelfScoping) target()  {}
func (GenericTable) target() {}
