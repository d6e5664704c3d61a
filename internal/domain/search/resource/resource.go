package resource

import (
	"fmt"
	"strings"
)

// BackendType is the kind of backend a resource is served by.
type BackendType string

// Backend type constants.
const (
	// Typed is a conventional typed record store.
	Typed BackendType = "typed"
	// ArchiveView is a view over a versioned archive store.
	ArchiveView BackendType = "archive_view"
	// ArchiveLegacy is a legacy archive store.
	ArchiveLegacy       BackendType = "archive_legacy"
	FederatedStore      BackendType = "federated_store"
	FederatedOnlyFilter BackendType = "federated_only_filter"
)

// IsValid checks if the backend type is one of the supported values.
func (t BackendType) IsValid() bool {
	switch t {
	case Typed, ArchiveView, ArchiveLegacy, FederatedStore, FederatedOnlyFilter:
		return true
	}
	return false
}

// IsArchive reports whether hitlist resolution for this type depends on resource ordering.
func (t BackendType) IsArchive() bool {
	return t == ArchiveView || t == ArchiveLegacy
}

// rank orders types for mixed lists: views, then legacy archives, then everything else.
func (t BackendType) rank() int {
	switch t {
	case ArchiveView:
		return 0
	case ArchiveLegacy:
		return 1
	default:
		return 2
	}
}

// Descriptor identifies one searchable backend resource (immutable value object).
type Descriptor struct {
	id          string
	backendType BackendType
	serverName  string
}

// New validates and creates a Descriptor. serverName may be empty for local resources.
func New(id string, t BackendType, serverName string) (Descriptor, error) {
	if id == "" {
		return Descriptor{}, fmt.Errorf("resource id is required")
	}
	if strings.ContainsAny(id, ", \t\n") {
		return Descriptor{}, fmt.Errorf("resource id %q contains separator characters", id)
	}
	if !t.IsValid() {
		return Descriptor{}, fmt.Errorf("invalid backend type %q for resource %q", t, id)
	}
	return Descriptor{id: id, backendType: t, serverName: serverName}, nil
}

// Reconstruct creates a Descriptor without validation (snapshot hydration).
func Reconstruct(id string, t BackendType, serverName string) Descriptor {
	return Descriptor{id: id, backendType: t, serverName: serverName}
}

// ID returns the resource id.
func (d Descriptor) ID() string { return d.id }

// Type returns the backend type.
func (d Descriptor) Type() BackendType { return d.backendType }

// ServerName returns the owning server, empty for local resources.
func (d Descriptor) ServerName() string { return d.serverName }

// String renders the descriptor as type!id or type!id@server.
func (d Descriptor) String() string {
	if d.serverName == "" {
		return string(d.backendType) + "!" + d.id
	}
	return string(d.backendType) + "!" + d.id + "@" + d.serverName
}

// ValidateList checks an ordered resource list: non-empty, unique ids,
// and archive views before legacy archives before all other types.
// Mis-ordered lists are rejected, never reordered.
func ValidateList(list []Descriptor) error {
	if len(list) == 0 {
		return fmt.Errorf("at least one resource is required")
	}
	seen := make(map[string]bool, len(list))
	prev := 0
	for i, d := range list {
		if seen[d.id] {
			return fmt.Errorf("duplicate resource id %q", d.id)
		}
		seen[d.id] = true

		r := d.backendType.rank()
		if i > 0 && r < prev {
			return fmt.Errorf("resource %s at position %d must precede %s",
				d, i, list[i-1])
		}
		prev = r
	}
	return nil
}

// HasArchive reports whether any resource in the list is an archive view or legacy archive.
func HasArchive(list []Descriptor) bool {
	for _, d := range list {
		if d.backendType.IsArchive() {
			return true
		}
	}
	return false
}

// LocalServer names the server of a resource declared without one.
const LocalServer = "local"

// ArchiveServers returns the distinct server names of archive resources in first-seen order.
// An empty server name is the local server and is reported as LocalServer.
func ArchiveServers(list []Descriptor) []string {
	var servers []string
	seen := make(map[string]bool)
	for _, d := range list {
		if !d.backendType.IsArchive() {
			continue
		}
		name := d.serverName
		if name == "" {
			name = LocalServer
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		servers = append(servers, name)
	}
	return servers
}
