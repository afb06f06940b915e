package scope

import (
	"fmt"
	"slices"
)

// AccessScope is the set of stores and websites a caller may read. It is
// either unrestricted or restricted to explicit id sets. The zero value is
// restricted to nothing, so only global rows are visible.
type AccessScope struct {
	unrestricted bool
	stores       []int
	websites     []int
}

// Unrestricted returns a scope that is never filtered.
func Unrestricted() AccessScope {
	return AccessScope{unrestricted: true}
}

// RestrictedTo returns a scope limited to the given store and website ids.
// The ids are copied, sorted and deduplicated.
func RestrictedTo(storeIDs, websiteIDs []int) AccessScope {
	return AccessScope{stores: normalize(storeIDs), websites: normalize(websiteIDs)}
}

// IsUnrestricted reports whether the scope grants all access.
func (s AccessScope) IsUnrestricted() bool {
	return s.unrestricted
}

// StoreIDs returns a copy of the allowed store ids.
func (s AccessScope) StoreIDs() []int {
	return slices.Clone(s.stores)
}

// WebsiteIDs returns a copy of the allowed website ids.
func (s AccessScope) WebsiteIDs() []int {
	return slices.Clone(s.websites)
}

// String implements fmt.Stringer.
func (s AccessScope) String() string {
	if s.unrestricted {
		return "unrestricted"
	}
	return fmt.Sprintf("stores=%v websites=%v", s.stores, s.websites)
}

func normalize(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	ids = slices.Clone(ids)
	slices.Sort(ids)
	return slices.Compact(ids)
}
