package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFileAcquireAndRelease(t *testing.T) {
	p := PIDFile{Path: filepath.Join(t.TempDir(), "run", "pburnd.pid")}
	st := RuntimeState{PID: os.Getpid(), Addr: "127.0.0.1:9999", StartedAt: time.Now().UTC().Truncate(time.Second)}

	require.NoError(t, p.Acquire(st))

	pid, alive := p.Running()
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, alive)

	got, err := p.State()
	require.NoError(t, err)
	assert.Equal(t, st.Addr, got.Addr)
	assert.True(t, st.StartedAt.Equal(got.StartedAt))

	// This process is alive, so a second daemon must refuse to start.
	require.Error(t, p.Acquire(st))

	p.Release()
	_, err = os.Stat(p.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(p.StatePath())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPIDFileCheckClearsStaleFile(t *testing.T) {
	p := PIDFile{Path: filepath.Join(t.TempDir(), "pburnd.pid")}
	// PIDs near the top of the range are never in use on a test machine.
	require.NoError(t, os.WriteFile(p.Path, []byte("4194000\n"), 0o600))
	require.NoError(t, os.WriteFile(p.StatePath(), []byte("{}"), 0o600))

	require.NoError(t, p.Check())
	_, err := os.Stat(p.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPIDFileReadRejectsGarbage(t *testing.T) {
	p := PIDFile{Path: filepath.Join(t.TempDir(), "pburnd.pid")}
	require.NoError(t, os.WriteFile(p.Path, []byte("not-a-pid"), 0o600))

	_, err := p.Read()
	require.Error(t, err)
	assert.Error(t, p.Check())
}

func TestPIDFileStopWithoutDaemon(t *testing.T) {
	p := PIDFile{Path: filepath.Join(t.TempDir(), "pburnd.pid")}
	_, err := p.Stop(time.Second)
	assert.EqualError(t, err, "daemon is not running")
}
