package leasestore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filelease/pkg/filelock"
)

var baseExpiry = time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "resource.lock"))
}

func holdExclusive(t *testing.T, path string) *filelock.Lock {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)

	lock, err := filelock.TryExclusive(f)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = lock.Unlock()
		_ = f.Close()
	})

	return lock
}

func TestWrite_ThenRead(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Write(baseExpiry))

	content, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "640433520000000000", string(content), "marker should hold bare tick digits")

	got, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, baseExpiry, got)
}

func TestWrite_TruncatesExistingContent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("6404335200000000000000000 trailing garbage"), 0o600))

	require.NoError(t, s.Write(baseExpiry))

	got, err := s.Read()
	require.NoError(t, err, "shorter write must not leave old bytes behind")
	assert.Equal(t, baseExpiry, got)
}

func TestWrite_ConvertsToUTC(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	local := baseExpiry.In(time.FixedZone("X", -5*60*60))
	require.NoError(t, s.Write(local))

	got, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, baseExpiry, got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestCreate_FailsWhenMarkerExists(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Create(baseExpiry))

	err := s.Create(baseExpiry.Add(time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrExist)

	got, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, baseExpiry, got, "failed create must leave the marker untouched")
}

func TestCreate_MissingDirectory(t *testing.T) {
	t.Parallel()

	s := New(filepath.Join(t.TempDir(), "nonexistent", "resource.lock"))

	err := s.Create(baseExpiry)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "create marker")
}

func TestRead_MissingMarker(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.Read()
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRead_CorruptMarker(t *testing.T) {
	t.Parallel()

	for name, content := range map[string]string{
		"empty":   "",
		"garbage": "not-a-number",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t)
			require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o600))

			_, err := s.Read()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.Contains(t, err.Error(), s.Path())
		})
	}
}

func TestReadPath_OverridesMarker(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	other := New(filepath.Join(t.TempDir(), "other.lock"))
	require.NoError(t, other.Write(baseExpiry))

	got, err := s.ReadPath(other.Path())
	require.NoError(t, err)
	assert.Equal(t, baseExpiry, got)

	_, err = s.Read()
	assert.ErrorIs(t, err, fs.ErrNotExist, "store's own marker should be unaffected")
}

func TestRead_BusyWhileExclusivelyLocked(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Write(baseExpiry))
	holdExclusive(t, s.Path())

	_, err := s.Read()
	assert.ErrorIs(t, err, ErrBusy)
}

func TestUpdate_RewritesExpiry(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Write(baseExpiry))

	next, err := s.Update(func(current time.Time) (time.Time, error) {
		assert.Equal(t, baseExpiry, current)
		return current.Add(time.Hour), nil
	})
	require.NoError(t, err)
	assert.Equal(t, baseExpiry.Add(time.Hour), next)

	got, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, baseExpiry.Add(time.Hour), got)
}

func TestUpdate_FuncErrorSkipsWrite(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Write(baseExpiry))

	errStop := errors.New("stop")
	current, err := s.Update(func(time.Time) (time.Time, error) {
		return baseExpiry.Add(time.Hour), errStop
	})
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, baseExpiry, current, "current expiry should be reported")

	got, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, baseExpiry, got)
}

var beyondYear9999 = time.Date(10001, 1, 1, 0, 0, 0, 0, time.UTC)

func TestCreate_RejectsUnencodableExpiry(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	err := s.Create(beyondYear9999)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr), "no marker should be left behind")
}

func TestWrite_RejectsUnencodableExpiry(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Write(baseExpiry))

	err := s.Write(beyondYear9999)
	require.ErrorIs(t, err, ErrOutOfRange)

	got, err := s.Read()
	require.NoError(t, err, "existing marker must stay readable")
	assert.Equal(t, baseExpiry, got)
}

func TestUpdate_RejectsUnencodableExpiry(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	near := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(near))

	current, err := s.Update(func(current time.Time) (time.Time, error) {
		return current.Add(48 * time.Hour), nil
	})
	require.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, near, current)

	got, err := s.Read()
	require.NoError(t, err, "marker must not be rewritten")
	assert.Equal(t, near, got)
}

func TestUpdate_DoesNotCreateMarker(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.Update(func(current time.Time) (time.Time, error) {
		return current.Add(time.Hour), nil
	})
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr), "update must not create a marker")
}

func TestUpdate_CorruptMarker(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("junk"), 0o600))

	called := false
	_, err := s.Update(func(current time.Time) (time.Time, error) {
		called = true
		return current, nil
	})
	require.ErrorIs(t, err, ErrCorrupt)
	assert.False(t, called, "fn must not run on unreadable content")
}

func TestUpdate_BusyWhileExclusivelyLocked(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Write(baseExpiry))
	holdExclusive(t, s.Path())

	_, err := s.Update(func(current time.Time) (time.Time, error) {
		return current.Add(time.Hour), nil
	})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestUpdate_MarkerRemovedDuringUpdate(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("open files cannot be removed on windows")
	}

	s := newTestStore(t)
	require.NoError(t, s.Write(baseExpiry))

	_, err := s.Update(func(current time.Time) (time.Time, error) {
		require.NoError(t, os.Remove(s.Path()))
		return current.Add(time.Hour), nil
	})
	require.ErrorIs(t, err, ErrLost)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr), "update must not resurrect a removed marker")
}

func TestUpdate_ConcurrentCallsSerialize(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Write(baseExpiry))

	const workers = 32

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(func(current time.Time) (time.Time, error) {
				return current.Add(time.Second), nil
			})
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, baseExpiry.Add(workers*time.Second), got, "no update should be lost")
}

func TestRemove_Idempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Write(baseExpiry))

	require.NoError(t, s.Remove())
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err), "marker should be removed")

	assert.NoError(t, s.Remove(), "second remove should be no-op")
}
