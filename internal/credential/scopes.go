package credential

import "strings"

const (
	// FullScope grants complete mailbox access and supersedes every other scope.
	FullScope   = "https://mail.google.com/"
	scopePrefix = "https://www.googleapis.com/auth/gmail."
	fullName    = "full"
)

// ExpandScopes turns logical scope names ("send", "modify", "readonly", ...)
// into permission URIs. Fully-qualified URIs are kept. Requesting "full"
// collapses the set to FullScope alone.
func ExpandScopes(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == fullName || name == FullScope {
			return []string{FullScope}
		}
		uri := name
		if !strings.HasPrefix(name, "https://") {
			uri = scopePrefix + name
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
	}
	return out
}
