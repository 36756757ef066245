package model

// Priority is a category's scheduling hint, passed through to whichever
// back-end mirror understands it.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityLow    Priority = "low"
	PriorityAuto   Priority = "auto"
)

// DefaultCategoryName is the one category guaranteed to always exist.
const DefaultCategoryName = "Default"

// PathMappings is the per-client translation of a category's canonical Path,
// used when a back-end runs in a container with different volume mounts.
type PathMappings struct {
	Amule      string `json:"amule,omitempty"`
	RTorrent   string `json:"rtorrent,omitempty"`
	QBittorent string `json:"qbittorrent,omitempty"`
}

// EffectivePath returns the path the given client should use: the override
// from PathMappings if present, otherwise the category's canonical Path.
func (pm PathMappings) EffectivePath(client ClientKind, canonical string) string {
	switch client {
	case ClientAmule:
		if pm.Amule != "" {
			return pm.Amule
		}
	case ClientRTorrent:
		if pm.RTorrent != "" {
			return pm.RTorrent
		}
	}
	return canonical
}

// Category is the unified, name-keyed category record. Each connected
// back-end maintains a mirror of this set (numeric id for ED2K, bare label
// for BT). Categories are keyed by name; an ED2K numeric id is translated
// to a name only at the back-end edge (category.Manager.ResolveEd2kID).
type Category struct {
	Name         string       `json:"name"`
	Title        string       `json:"title"`
	Path         string       `json:"path"`
	PathMappings PathMappings `json:"pathMappings"`
	Color        uint32       `json:"color"` // 24-bit RGB packed into the low bits
	Priority     Priority     `json:"priority"`
	Comment      string       `json:"comment,omitempty"`
}

// IsDefault reports whether this is the one category that can never be
// renamed, repathed, deleted, or have its priority changed.
func (c Category) IsDefault() bool { return c.Name == DefaultCategoryName }

// PathWarning describes why a category's effective path is not usable from
// the bridge's filesystem view for a given client.
type PathWarning struct {
	Category string     `json:"category"`
	Client   ClientKind `json:"client"`
	Path     string     `json:"path"`
	Reason   string     `json:"reason"`
}
