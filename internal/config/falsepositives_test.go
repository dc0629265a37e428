package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
)

var _ pii.FalsePositiveSource = (*FalsePositiveReloader)(nil)

func TestFalsePositiveReloader_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"person": ["Herr", " Frau "]}`), 0o644))

	r := NewFalsePositiveReloader(path, nil)
	assert.True(t, r.FalsePositives().Contains("person", "frau"))
	assert.Equal(t, 2, r.FalsePositives().Len())
}

func TestFalsePositiveReloader_MissingFileIsEmpty(t *testing.T) {
	r := NewFalsePositiveReloader(filepath.Join(t.TempDir(), "none.json"), nil)
	require.NotNil(t, r.FalsePositives())
	assert.Equal(t, 0, r.FalsePositives().Len())
}

func TestFalsePositiveReloader_BadReloadKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"email": ["info@example.com"]}`), 0o644))
	r := NewFalsePositiveReloader(path, nil)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	assert.Error(t, r.Reload())
	assert.True(t, r.FalsePositives().Contains("email", "info@example.com"))
}

func TestFalsePositiveReloader_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	r := NewFalsePositiveReloader(path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"organization": ["GmbH"]}`), 0o644))

	assert.Eventually(t, func() bool {
		return r.FalsePositives().Contains("organization", "gmbh")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

//Personal.AI order the ending
