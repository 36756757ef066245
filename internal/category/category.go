// Package category owns the unified, name-keyed category set and its
// per-client id/label mirrors. Mutations are serialised by the Manager's
// internal mutex and each one is followed by an explicit reconcile of the
// mirrors, so reconciliation never observes a torn write, the same
// "one owner, explicit reconcile" shape the teacher gives its Tracker state.
package category

import (
	"os"
	"sync"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
	"github.com/dlbridge/dlbridge/internal/model"
)

// Mirror is implemented by each connected back-end adapter to apply the
// category set to its own id/label world.
type Mirror interface {
	Client() model.ClientKind
	// SyncCategories pushes the full category set to the back-end.
	SyncCategories(cats []model.Category) error
}

// PathProber checks whether a path is usable from the bridge's filesystem
// view; overridable in tests.
type PathProber func(path string) (readable, writable bool, reason string)

// Manager is the source of truth for categories.
type Manager struct {
	mu      sync.RWMutex
	byName  map[string]model.Category
	order   []string // insertion order, Default always first
	mirrors []Mirror
	prober  PathProber
	dockerHint bool
}

// New builds a Manager seeded with the mandatory Default category.
func New(prober PathProber) *Manager {
	if prober == nil {
		prober = defaultPathProber
	}
	m := &Manager{
		byName: make(map[string]model.Category),
		prober: prober,
		dockerHint: isDocker(),
	}
	m.byName[model.DefaultCategoryName] = model.Category{Name: model.DefaultCategoryName}
	m.order = append(m.order, model.DefaultCategoryName)
	return m
}

func isDocker() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

// RegisterMirror adds a back-end mirror to be kept in sync on every mutation.
func (m *Manager) RegisterMirror(mirror Mirror) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrors = append(m.mirrors, mirror)
}

// List returns a snapshot of all categories in stable order.
func (m *Manager) List() []model.Category {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Category, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.byName[name])
	}
	return out
}

// Get returns a category by name.
func (m *Manager) Get(name string) (model.Category, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byName[name]
	return c, ok
}

// Create adds a new category and reconciles mirrors.
func (m *Manager) Create(c model.Category) error {
	m.mu.Lock()
	if _, exists := m.byName[c.Name]; exists {
		m.mu.Unlock()
		return bridgeerr.New(bridgeerr.KindConflict, "category.Create", nil)
	}
	m.byName[c.Name] = c
	m.order = append(m.order, c.Name)
	m.mu.Unlock()
	return m.reconcile()
}

// Update patches an existing category by name. Renaming the Default
// category, or changing its Path or Priority, is refused.
func (m *Manager) Update(name string, patch model.Category) error {
	m.mu.Lock()
	existing, ok := m.byName[name]
	if !ok {
		m.mu.Unlock()
		return bridgeerr.New(bridgeerr.KindNotFound, "category.Update", nil)
	}
	if existing.IsDefault() && ((patch.Name != "" && patch.Name != model.DefaultCategoryName) ||
		patch.Path != existing.Path || patch.Priority != existing.Priority) {
		m.mu.Unlock()
		return bridgeerr.New(bridgeerr.KindConflict, "category.Update", nil)
	}
	patch.Name = name
	m.byName[name] = patch
	m.mu.Unlock()
	return m.reconcile()
}

// Delete removes a category by name. Deleting "Default" is always refused.
func (m *Manager) Delete(name string) error {
	if name == model.DefaultCategoryName {
		return bridgeerr.New(bridgeerr.KindConflict, "category.Delete", nil)
	}
	m.mu.Lock()
	if _, ok := m.byName[name]; !ok {
		m.mu.Unlock()
		return bridgeerr.New(bridgeerr.KindNotFound, "category.Delete", nil)
	}
	delete(m.byName, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return m.reconcile()
}

// ResolveEd2kID resolves the ED2K engine's numeric category id (its
// position in the synced order — see Session.SyncCategories) back to the
// unified category name; an id past the end of the current set falls back
// to Default the same way an unsynced engine would report id 0.
func (m *Manager) ResolveEd2kID(id int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 0 || id >= len(m.order) {
		return model.DefaultCategoryName
	}
	return m.order[id]
}

// ResolveLabel resolves a BT engine's bare label back to the unified
// category name; labels are already name-keyed, so this just confirms the
// label still names a known category, falling back to Default otherwise.
func (m *Manager) ResolveLabel(label string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.byName[label]; ok {
		return label
	}
	return model.DefaultCategoryName
}

// IDForName returns the ED2K-mirror numeric id for a category name, the
// inverse of ResolveEd2kID.
func (m *Manager) IDForName(name string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, n := range m.order {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// reconcile pushes the current category set to every registered mirror,
// then re-reads List() implicitly by virtue of the mirrors pulling from
// the same source of truth — there is nothing to pull back since this
// Manager, not the mirrors, is authoritative.
func (m *Manager) reconcile() error {
	cats := m.List()
	var firstErr error
	for _, mirror := range m.mirrors {
		if err := mirror.SyncCategories(cats); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func defaultPathProber(path string) (readable, writable bool, reason string) {
	if path == "" {
		return true, true, ""
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, false, "path does not exist"
	}
	if !info.IsDir() {
		return false, false, "path is not a directory"
	}
	probe := path + "/.dlbridge-write-probe"
	f, err := os.Create(probe)
	if err != nil {
		return true, false, "path is not writable"
	}
	f.Close()
	os.Remove(probe)
	return true, true, ""
}

// PathWarnings computes, for every category and every client kind named,
// whether its effective path is usable from the bridge's filesystem view.
func (m *Manager) PathWarnings(clients []model.ClientKind) []model.PathWarning {
	m.mu.RLock()
	cats := make([]model.Category, 0, len(m.order))
	for _, name := range m.order {
		cats = append(cats, m.byName[name])
	}
	hint := m.dockerHint
	m.mu.RUnlock()

	var warnings []model.PathWarning
	for _, c := range cats {
		for _, client := range clients {
			path := c.PathMappings.EffectivePath(client, c.Path)
			if path == "" {
				continue
			}
			readable, writable, reason := m.prober(path)
			if readable && writable {
				continue
			}
			if hint {
				reason += " (running in a container: verify volume mounts)"
			}
			warnings = append(warnings, model.PathWarning{
				Category: c.Name,
				Client:   client,
				Path:     path,
				Reason:   reason,
			})
		}
	}
	return warnings
}

// HasPathWarnings is the single boolean the UI surfaces alongside detail.
func (m *Manager) HasPathWarnings(clients []model.ClientKind) bool {
	return len(m.PathWarnings(clients)) > 0
}
