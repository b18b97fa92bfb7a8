// Package names holds the dotted-name bookkeeping shared by the region tree.
package names

import "strings"

const (
	// ReservedPrefix marks housekeeping hash fields that must never be
	// surfaced through iteration.
	ReservedPrefix = "__"

	// CreatedAtField records the region's creation timestamp inside its hash.
	CreatedAtField = "__cache_region_created_at__"

	// childSuffix is appended to a region name to form its child-set key.
	childSuffix = "::child_caches"
)

// Qualify prepends root to name unless name is already rooted.
// An empty name resolves to the root itself.
func Qualify(root, name string) string {
	if name == "" || name == root {
		return root
	}
	if strings.HasPrefix(name, root+".") {
		return name
	}
	return root + "." + name
}

// Prefixes returns every ancestor prefix of a qualified name, shortest
// first, ending with the name itself. "root.a.b" => ["root", "root.a", "root.a.b"].
func Prefixes(qualified string) []string {
	segs := strings.Split(qualified, ".")
	out := make([]string, 0, len(segs))
	for i := range segs {
		out = append(out, strings.Join(segs[:i+1], "."))
	}
	return out
}

// Parent returns the parent name of a qualified name, or "" for the root.
func Parent(qualified string) string {
	i := strings.LastIndex(qualified, ".")
	if i < 0 {
		return ""
	}
	return qualified[:i]
}

// ChildSetKey is the remote set holding the names of a region's children.
func ChildSetKey(qualified string) string {
	return qualified + childSuffix
}

// Reserved reports whether a hash field is a housekeeping field.
func Reserved(field string) bool {
	return strings.HasPrefix(field, ReservedPrefix)
}
