package filewatcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lightforgemedia/go-nanorpc/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "subscriptions.yaml")
	require.NoError(t, os.WriteFile(target, []byte("subscriptions: []\n"), 0o644))

	changeCh := make(chan string, 10)
	w, err := New(func(path string) { changeCh <- path }, []string{target},
		WithLogger(testutil.DefaultLogger),
		WithDebounce(100*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// Several quick writes are reported once.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte("subscriptions: [] # edit\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case path := <-changeCh:
		assert.Equal(t, target, path)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for file change notification")
	}
	select {
	case path := <-changeCh:
		t.Fatalf("Received a second notification for %s", path)
	case <-time.After(300 * time.Millisecond):
	}

	// Other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "other.yaml"), []byte("x"), 0o644))
	select {
	case path := <-changeCh:
		t.Fatalf("Received unexpected change notification for %s", path)
	case <-time.After(300 * time.Millisecond):
	}

	// Replace by rename, the way editors save.
	tmp := filepath.Join(tempDir, ".subscriptions.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("subscriptions: []\n"), 0o644))
	require.NoError(t, os.Rename(tmp, target))
	select {
	case path := <-changeCh:
		assert.Equal(t, target, path)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for rename notification")
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, []string{"a.yaml"})
	assert.Error(t, err)

	_, err = New(func(string) {}, nil)
	assert.Error(t, err)
}

func TestStopIsIdempotent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "s.yaml")
	w, err := New(func(string) {}, []string{target})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
