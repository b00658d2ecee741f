package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	id := For("db", "prod", 2)

	assert.Equal(t, "db-2", id.Name)
	assert.Equal(t, "db-2.db.prod", id.Address)
	assert.Equal(t, 2, id.Ordinal)
}

func TestForDeterministic(t *testing.T) {
	a := For("cache", "default", 0)
	b := For("cache", "default", 0)
	assert.Equal(t, a, b, "same inputs must always yield the same identity")
}

func TestPeers(t *testing.T) {
	peers := Peers("db", "default", 3)

	require.Len(t, peers, 3)
	assert.Equal(t, []string{
		"db-0.db.default",
		"db-1.db.default",
		"db-2.db.default",
	}, peers)

	assert.Empty(t, Peers("db", "default", 0))
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name     string
		workload string
		ordinal  int
		wantErr  bool
	}{
		{"db-0", "db", 0, false},
		{"db-12", "db", 12, false},
		{"my-app-3", "my-app", 3, false},
		{"db", "", 0, true},
		{"db-", "", 0, true},
		{"-3", "", 0, true},
		{"db-abc", "", 0, true},
		{"db--1", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workload, ordinal, err := ParseName(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.workload, workload)
			assert.Equal(t, tt.ordinal, ordinal)
		})
	}
}

func TestParseNameRoundTrip(t *testing.T) {
	for ordinal := 0; ordinal < 5; ordinal++ {
		workload, got, err := ParseName(Name("etcd", ordinal))
		require.NoError(t, err)
		assert.Equal(t, "etcd", workload)
		assert.Equal(t, ordinal, got)
	}
}
