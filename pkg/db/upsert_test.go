package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnConflictUpdate(t *testing.T) {
	got := OnConflictUpdate("user_id", Columns(map[string]any{
		"user_id":    "u1",
		"units":      "metric",
		"updated_at": "now",
	})...)
	assert.Equal(t, "ON CONFLICT (user_id) DO UPDATE SET units = EXCLUDED.units, updated_at = EXCLUDED.updated_at", got)
}

func TestOnConflictUpdate_OnlyConflictColumn(t *testing.T) {
	assert.Equal(t, "ON CONFLICT (id) DO NOTHING", OnConflictUpdate("id", "id"))
}
