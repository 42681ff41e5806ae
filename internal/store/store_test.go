package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]func() Backend {
	dir := t.TempDir()
	return map[string]func() Backend{
		BackendPebble: func() Backend {
			s, err := Open(Options{Backend: BackendPebble, Path: filepath.Join(dir, "pebble")})
			require.NoError(t, err)
			return s
		},
		BackendSQLite: func() Backend {
			s, err := Open(Options{Backend: BackendSQLite, Path: filepath.Join(dir, "sqlite", "taskline.db")})
			require.NoError(t, err)
			return s
		},
		BackendMemory: func() Backend {
			return NewMemory()
		},
	}
}

func TestBackendSetGetDelete(t *testing.T) {
	for name, open := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			v, err := s.Get([]byte("missing"))
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, s.Set([]byte("k"), []byte("v1")))
			v, err = s.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), v)

			// Overwrite
			require.NoError(t, s.Set([]byte("k"), []byte("v2")))
			v, err = s.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), v)

			require.NoError(t, s.Delete([]byte("k")))
			v, err = s.Get([]byte("k"))
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

func TestDurableBackendsSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	for _, opts := range []Options{
		{Backend: BackendPebble, Path: filepath.Join(dir, "pebble")},
		{Backend: BackendSQLite, Path: filepath.Join(dir, "taskline.db")},
	} {
		t.Run(opts.Backend, func(t *testing.T) {
			s, err := Open(opts)
			require.NoError(t, err)
			require.NoError(t, s.Set([]byte("taskline:jobs"), []byte("snapshot")))
			require.NoError(t, s.Close())

			s, err = Open(opts)
			require.NoError(t, err)
			defer s.Close()

			v, err := s.Get([]byte("taskline:jobs"))
			require.NoError(t, err)
			assert.Equal(t, []byte("snapshot"), v)
		})
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemory()
	value := []byte("abc")
	require.NoError(t, s.Set([]byte("k"), value))
	value[0] = 'z'

	got, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "etcd"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNewSQLRequiresDSN(t *testing.T) {
	_, err := NewSQL("postgres", "")
	assert.Error(t, err)
}

func TestNewRedisRequiresURL(t *testing.T) {
	_, err := NewRedis("")
	assert.Error(t, err)

	_, err = NewRedis("http://not-redis")
	assert.Error(t, err)
}

// External backends run only when a server is provided.
func TestExternalBackends(t *testing.T) {
	external := map[string]Options{}
	if dsn := os.Getenv("TASKLINE_TEST_POSTGRES_DSN"); dsn != "" {
		external[BackendPostgres] = Options{Backend: BackendPostgres, DSN: dsn}
	}
	if url := os.Getenv("TASKLINE_TEST_REDIS_URL"); url != "" {
		external[BackendRedis] = Options{Backend: BackendRedis, DSN: url}
	}
	if len(external) == 0 {
		t.Skip("set TASKLINE_TEST_POSTGRES_DSN or TASKLINE_TEST_REDIS_URL to run")
	}

	for name, opts := range external {
		t.Run(name, func(t *testing.T) {
			s, err := Open(opts)
			require.NoError(t, err)
			defer s.Close()

			key := []byte("taskline:test:" + t.Name())
			defer s.Delete(key)

			require.NoError(t, s.Set(key, []byte{0x00, 0xff, 'x'}))
			v, err := s.Get(key)
			require.NoError(t, err)
			assert.Equal(t, []byte{0x00, 0xff, 'x'}, v)

			require.NoError(t, s.Delete(key))
			v, err = s.Get(key)
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}
