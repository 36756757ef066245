package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dlbridge/dlbridge/internal/model"
)

func TestObserveInsertsAndCompletes(t *testing.T) {
	backend := NewJSONBackend(filepath.Join(t.TempDir(), "history.json"))
	rec, err := NewRecorder(backend)
	require.NoError(t, err)

	it := &model.Item{Hash: "h1", Name: "File", Size: 100, SizeDownloaded: 50, Progress: 50, Status: model.StatusDownloading}
	require.NoError(t, rec.Observe([]*model.Item{it}))

	list := rec.List()
	require.Len(t, list, 1)
	require.Equal(t, model.HistoryDownloading, list[0].Status)
	require.Nil(t, list[0].CompletedAt)

	it.Progress = 100
	it.SizeDownloaded = 100
	require.NoError(t, rec.Observe([]*model.Item{it}))

	list = rec.List()
	require.Equal(t, model.HistoryCompleted, list[0].Status)
	require.NotNil(t, list[0].CompletedAt)
}

func TestObserveMarksMissingWhenVanished(t *testing.T) {
	backend := NewJSONBackend(filepath.Join(t.TempDir(), "history.json"))
	rec, err := NewRecorder(backend)
	require.NoError(t, err)

	it := &model.Item{Hash: "h1", Size: 10, SizeDownloaded: 1, Status: model.StatusDownloading}
	require.NoError(t, rec.Observe([]*model.Item{it}))
	require.NoError(t, rec.Observe(nil))

	list := rec.List()
	require.Len(t, list, 1)
	require.Equal(t, model.HistoryMissing, list[0].Status)
}

func TestRecorderSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	backend := NewJSONBackend(path)
	rec, err := NewRecorder(backend)
	require.NoError(t, err)
	require.NoError(t, rec.Observe([]*model.Item{{Hash: "h1", Size: 10, SizeDownloaded: 10, Status: model.StatusSeeding}}))

	backend2 := NewJSONBackend(path)
	rec2, err := NewRecorder(backend2)
	require.NoError(t, err)
	require.Len(t, rec2.List(), 1)
}

func TestOpenUnknownDriverFails(t *testing.T) {
	_, err := Open("nonexistent", nil)
	require.Error(t, err)
}
