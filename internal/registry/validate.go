package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Missing returns the referenced names that are not registered, sorted and
// de-duplicated.
func (r *Registry[T]) Missing(refs ...string) []string {
	seen := make(map[string]struct{})
	var missing []string
	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		if _, ok := r.Lookup(ref); !ok {
			missing = append(missing, ref)
		}
	}
	sort.Strings(missing)
	return missing
}

// Validate checks that every reference resolves. The returned error wraps
// sentinel and lists each unknown name together with the registered ones.
func (r *Registry[T]) Validate(sentinel error, refs ...string) error {
	missing := r.Missing(refs...)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: unknown %s reference(s) %s (registered: %s)",
		sentinel, r.what, quoteAll(missing), strings.Join(r.Names(), ", "))
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
