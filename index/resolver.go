// Package index resolves the physical table backing a dimensioned index.
package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/syssam/stageview/tablemap"
)

// MainTable is the logical category/product index table.
const MainTable = "catalog_category_product_index"

// StoreEntity is the dimension name of the store shard.
const StoreEntity = "store"

// DefaultMaxLength is the identifier limit of MySQL.
const DefaultMaxLength = 64

// Dimension is one sharding key of an index.
type Dimension struct {
	Name  string
	Value string
}

// StoreDimension returns the store dimension for storeID.
func StoreDimension(storeID int) Dimension {
	return Dimension{Name: StoreEntity, Value: strconv.Itoa(storeID)}
}

// String returns the suffix part of the dimension, e.g. "store7".
func (d Dimension) String() string {
	return d.Name + d.Value
}

// Resolver maps a logical index name and its dimensions to a physical table.
type Resolver interface {
	Resolve(table string, dims ...Dimension) string
}

// The ResolverFunc type is an adapter to allow the use of an ordinary
// function as a Resolver.
type ResolverFunc func(string, ...Dimension) string

// Resolve calls f(table, dims...).
func (f ResolverFunc) Resolve(table string, dims ...Dimension) string {
	return f(table, dims...)
}

// ScopeResolver appends one "_<name><value>" suffix per dimension, in order.
//
//	catalog_category_product_index + store=7 => catalog_category_product_index_store7
type ScopeResolver struct {
	maxLength int
}

// Option configures a ScopeResolver.
type Option func(*ScopeResolver)

// WithMaxLength sets the identifier limit. Longer names are shortened.
func WithMaxLength(n int) Option {
	return func(r *ScopeResolver) {
		r.maxLength = n
	}
}

// NewScopeResolver returns a resolver with the MySQL identifier limit.
func NewScopeResolver(opts ...Option) *ScopeResolver {
	r := &ScopeResolver{maxLength: DefaultMaxLength}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements the Resolver interface.
func (r *ScopeResolver) Resolve(table string, dims ...Dimension) string {
	var b strings.Builder
	b.WriteString(table)
	for _, d := range dims {
		b.WriteByte('_')
		b.WriteString(d.String())
	}
	return Shorten(b.String(), r.maxLength)
}

// Shorten truncates name to limit bytes, replacing its tail with the murmur3
// hash of the full name. Names within the limit are returned unchanged.
func Shorten(name string, limit int) string {
	if limit <= 0 || len(name) <= limit {
		return name
	}
	suffix := fmt.Sprintf("_%08x", murmur3.Sum32([]byte(name)))
	if limit <= len(suffix) {
		return suffix[len(suffix)-limit:]
	}
	return name[:limit-len(suffix)] + suffix
}

// MappedResolver resolves dimensions first and then substitutes the
// override installed in the registry, if any.
type MappedResolver struct {
	resolver Resolver
	registry *tablemap.Registry
}

// NewMappedResolver returns a resolver consulting reg after r.
func NewMappedResolver(r Resolver, reg *tablemap.Registry) *MappedResolver {
	return &MappedResolver{resolver: r, registry: reg}
}

// Resolve implements the Resolver interface.
func (m *MappedResolver) Resolve(table string, dims ...Dimension) string {
	return m.registry.Resolve(m.resolver.Resolve(table, dims...))
}

var (
	_ Resolver = (*ScopeResolver)(nil)
	_ Resolver = (*MappedResolver)(nil)
)
