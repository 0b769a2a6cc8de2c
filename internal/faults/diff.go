package faults

import "strings"

// keySeparator joins identity values into a row key.
const keySeparator = "|"

// excludedIdentity is an *_id column that describes placement rather than
// the faulting object.
const excludedIdentity = "location_id"

// IsIdentityField reports whether a column participates in row identity:
// "id" itself or any name ending in "_id", except location_id.
func IsIdentityField(name string) bool {
	if name == excludedIdentity {
		return false
	}
	return name == "id" || strings.HasSuffix(name, "_id")
}

// IdentityFields returns the identity columns of row in column order.
func IdentityFields(row Row) []string {
	var names []string
	for _, f := range row {
		if IsIdentityField(f.Name) {
			names = append(names, f.Name)
		}
	}
	return names
}

// IdentityKey joins the identity values of row with "|". Null values
// contribute an empty string. A row without identity columns has the
// empty key, so all such rows are indistinguishable to Diff.
func IdentityKey(row Row) string {
	var parts []string
	for _, f := range row {
		if IsIdentityField(f.Name) {
			parts = append(parts, f.Value.String())
		}
	}
	return strings.Join(parts, keySeparator)
}

// Diff compares the rows of the previous evaluation with the current ones.
// Previous rows are indexed by identity key, a later duplicate replacing an
// earlier one. A current row whose key is not indexed is added; otherwise
// it consumes the indexed entry. Entries left unconsumed are resolved.
// added keeps current order and resolved keeps previous order.
func Diff(previous, current Set) (added, resolved Set) {
	lookup := make(map[string]int, len(previous))
	for i, row := range previous {
		lookup[IdentityKey(row)] = i
	}

	for _, row := range current {
		key := IdentityKey(row)
		if _, ok := lookup[key]; !ok {
			added = append(added, row)
			continue
		}
		delete(lookup, key)
	}

	for i, row := range previous {
		if idx, ok := lookup[IdentityKey(row)]; ok && idx == i {
			resolved = append(resolved, row)
		}
	}
	return added, resolved
}
