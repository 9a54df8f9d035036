package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseTenantID_Invariants validates the parsing invariant:
// "tenant identifiers must be non-empty, valid UTF-8, and bounded".
//
// Justification: This is a pure function enforcing a domain invariant
// at trust boundaries.
func TestParseTenantID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTenantID("")
		require.Error(t, err)
	})

	t.Run("rejects whitespace-only string", func(t *testing.T) {
		_, err := ParseTenantID("   ")
		require.Error(t, err)
	})

	t.Run("rejects non-UTF8 input", func(t *testing.T) {
		_, err := ParseTenantID(string([]byte{0xff, 0xfe}))
		require.Error(t, err)
	})

	t.Run("rejects oversized identifier", func(t *testing.T) {
		_, err := ParseTenantID(strings.Repeat("a", 129))
		require.Error(t, err)
	})

	t.Run("accepts opaque identifiers", func(t *testing.T) {
		for _, raw := range []string{"tenant-A", uuid.NewString(), "acme_corp"} {
			id, err := ParseTenantID(raw)
			require.NoError(t, err)
			assert.Equal(t, TenantID(raw), id)
		}
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		id, err := ParseTenantID("  tenant-A  ")
		require.NoError(t, err)
		assert.Equal(t, TenantID("tenant-A"), id)
	})
}

func TestParseEventID(t *testing.T) {
	t.Run("rejects non-uuid input", func(t *testing.T) {
		_, err := ParseEventID("not-a-uuid")
		require.Error(t, err)
	})

	t.Run("round-trips a valid UUID", func(t *testing.T) {
		raw := uuid.New()
		id, err := ParseEventID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, EventID(raw), id)
		assert.Equal(t, raw.String(), id.String())
	})
}

// TestTypeDistinction documents the compile-time invariant: typed IDs prevent
// a tenant identifier from being passed where an event identifier is expected.
func TestTypeDistinction(t *testing.T) {
	// The following would fail to compile:
	// var _ EventID = TenantID("t")  // type mismatch
	// var _ TenantID = NewEventID()  // type mismatch
	t.Log("Typed IDs prevent cross-type assignment at compile time")
}
