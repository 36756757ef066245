package category

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
	"github.com/dlbridge/dlbridge/internal/model"
)

type recordingMirror struct {
	client model.ClientKind
	synced []model.Category
}

func (r *recordingMirror) Client() model.ClientKind { return r.client }
func (r *recordingMirror) SyncCategories(cats []model.Category) error {
	r.synced = cats
	return nil
}

func TestDefaultCategoryAlwaysPresent(t *testing.T) {
	m := New(nil)
	cats := m.List()
	require.Len(t, cats, 1)
	require.Equal(t, model.DefaultCategoryName, cats[0].Name)
}

func TestCreateAndReconcile(t *testing.T) {
	m := New(nil)
	mirror := &recordingMirror{client: model.ClientRTorrent}
	m.RegisterMirror(mirror)

	err := m.Create(model.Category{Name: "Movies", Path: "/mnt/m"})
	require.NoError(t, err)
	require.Len(t, mirror.synced, 2)
}

func TestDeleteDefaultRefused(t *testing.T) {
	m := New(nil)
	err := m.Delete(model.DefaultCategoryName)
	require.Error(t, err)
	require.Equal(t, bridgeerr.KindConflict, bridgeerr.KindOf(err))
}

func TestDeleteUnknownNotFound(t *testing.T) {
	m := New(nil)
	err := m.Delete("Nope")
	require.Error(t, err)
	require.Equal(t, bridgeerr.KindNotFound, bridgeerr.KindOf(err))
}

func TestCreateDuplicateConflict(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.Create(model.Category{Name: "Movies"}))
	err := m.Create(model.Category{Name: "Movies"})
	require.Error(t, err)
	require.Equal(t, bridgeerr.KindConflict, bridgeerr.KindOf(err))
}

func TestPathWarningsUsesProber(t *testing.T) {
	m := New(func(path string) (bool, bool, string) {
		return false, false, "simulated missing mount"
	})
	require.NoError(t, m.Create(model.Category{Name: "Movies", Path: "/mnt/m"}))

	warnings := m.PathWarnings([]model.ClientKind{model.ClientRTorrent})
	require.Len(t, warnings, 1)
	require.Equal(t, "Movies", warnings[0].Category)
	require.True(t, m.HasPathWarnings([]model.ClientKind{model.ClientRTorrent}))
}

func TestPathWarningsEmptyPathSkipped(t *testing.T) {
	m := New(func(path string) (bool, bool, string) { return false, false, "x" })
	require.False(t, m.HasPathWarnings([]model.ClientKind{model.ClientAmule}))
}
