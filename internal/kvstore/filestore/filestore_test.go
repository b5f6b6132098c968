package filestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alexmihai1804/autowatering/internal/kvstore"
	"github.com/alexmihai1804/autowatering/internal/kvstore/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := filestore.Open(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.IsDefaults())

	payload := kvstore.EncodeVersioned(1, []byte("hello"))
	require.NoError(t, s.Save(kvstore.ChannelCfgID(3), payload))

	assert.False(t, s.IsDefaults())

	got, err := s.Load(kvstore.ChannelCfgID(3))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	version, body, err := kvstore.DecodeVersioned(got)
	require.NoError(t, err)
	assert.Equal(t, byte(1), version)
	assert.Equal(t, []byte("hello"), body)
}

func TestFileStore_LoadMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := filestore.Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(kvstore.RainState)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestFileStore_ReopenPreservesDefaultsFlag(t *testing.T) {
	dir := t.TempDir()
	s, err := filestore.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(kvstore.MasterValveCfg, []byte{1}))
	require.NoError(t, s.Close())

	reopened, err := filestore.Open(dir)
	require.NoError(t, err)
	assert.False(t, reopened.IsDefaults())
}

func TestFileStore_SaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s, err := filestore.Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(kvstore.OnboardingState, []byte{9}))
	// no stray temp file should remain after a successful save
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, filepath.Ext(e.Name()), "tmp")
	}
}
