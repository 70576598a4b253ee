package obs

import "strings"

// CanonicalPath collapses per-entity path segments so metric label cardinality
// stays bounded. Unknown paths are returned as-is.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" {
		switch parts[1] {
		case "users":
			if len(parts) == 3 {
				return "/v1/users/:id"
			}
			switch {
			case len(parts) == 4:
				return "/v1/users/:id/" + parts[3]
			case len(parts) == 5 && parts[3] == "roles":
				return "/v1/users/:id/roles/:name"
			}
		case "roles":
			if len(parts) == 3 {
				return "/v1/roles/:id"
			}
		case "tenants":
			if len(parts) == 3 {
				return "/v1/tenants/:id"
			}
		}
	}
	return path
}
