package hashstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
)

func TestSetAndGetMappingBijective(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "hashes.json"))
	require.NoError(t, err)

	magnet, err := s.SetMapping("ed2k-abc", "", Meta{Name: "File.iso"})
	require.NoError(t, err)
	require.Len(t, magnet, 40)

	require.Equal(t, magnet, s.GetMagnetHash("ed2k-abc"))
	require.Equal(t, "ed2k-abc", s.GetEd2kHash(magnet))
}

func TestSetMappingCollisionRefused(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "hashes.json"))
	require.NoError(t, err)

	fixed := "0123456789abcdef0123456789abcdef01234567"[:40]
	_, err = s.SetMapping("ed2k-one", fixed, Meta{Name: "a"})
	require.NoError(t, err)

	_, err = s.SetMapping("ed2k-two", fixed, Meta{Name: "b"})
	require.Error(t, err)
	require.Equal(t, bridgeerr.KindConflict, bridgeerr.KindOf(err))
}

func TestRemoveMapping(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "hashes.json"))
	require.NoError(t, err)

	magnet, err := s.SetMapping("ed2k-abc", "", Meta{Name: "File.iso"})
	require.NoError(t, err)
	require.NoError(t, s.RemoveMapping("ed2k-abc"))
	require.Equal(t, "", s.GetMagnetHash("ed2k-abc"))
	require.Equal(t, "", s.GetEd2kHash(magnet))
}

func TestOpenMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "nonexistent.json"))
	require.NoError(t, err)
	require.Equal(t, "", s.GetMagnetHash("whatever"))
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hashes.json")
	s, err := Open(path)
	require.NoError(t, err)
	magnet, err := s.SetMapping("ed2k-xyz", "", Meta{Name: "Thing"})
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, magnet, reopened.GetMagnetHash("ed2k-xyz"))
}
