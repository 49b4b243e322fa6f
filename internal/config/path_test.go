package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("CHARGEMAP_TEST_DIR", "/srv/data")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "tilde only", in: "~", want: home},
		{name: "tilde prefix", in: "~/db/chargemap.db", want: filepath.Join(home, "db", "chargemap.db")},
		{name: "env var", in: "$CHARGEMAP_TEST_DIR/chargemap.db", want: "/srv/data/chargemap.db"},
		{name: "absolute", in: "/var/lib/chargemap.db", want: "/var/lib/chargemap.db"},
		{name: "tilde in the middle", in: "/tmp/~/x", want: "/tmp/~/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestResolveDatabasePath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "blank", in: "  ", want: ""},
		{name: "in-memory", in: MemoryDatabase, want: MemoryDatabase},
		{name: "relative", in: "data/chargemap.db", want: filepath.Join(wd, "data", "chargemap.db")},
		{name: "tilde", in: "~/chargemap.db", want: filepath.Join(home, "chargemap.db")},
		{name: "cleaned", in: "/var/lib/../lib/chargemap.db", want: "/var/lib/chargemap.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDatabasePath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultDatabasePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "chargemap", "chargemap.db"), DefaultDatabasePath())
}
