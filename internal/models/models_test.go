package models_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cases-miniapp-backend/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := models.DefaultCatalog()

	require.NoError(t, catalog.Validate())
	assert.Len(t, catalog, 6)
	assert.Equal(t, uint64(9007), catalog.TotalTickets())
}

func TestCatalogValidation(t *testing.T) {
	cases := map[string]models.Catalog{
		"empty":        {},
		"zero tickets": {{ID: "A", Title: "a", Tickets: 0}},
		"no id":        {{Title: "a", Tickets: 1}},
		"duplicate":    {{ID: "A", Tickets: 1}, {ID: "A", Tickets: 2}},
		"overflow":     {{ID: "A", Tickets: ^uint64(0)}, {ID: "B", Tickets: 1}},
	}

	for name, catalog := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, catalog.Validate(), models.ErrInvalidCatalog)
		})
	}
}

func TestLoadCatalogFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
items:
  - id: GOLD
    title: Gold
    tickets: 1
  - id: SILVER
    title: Silver
    tickets: 9
`), 0o600))

	catalog, err := models.LoadCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, models.Catalog{
		{ID: "GOLD", Title: "Gold", Tickets: 1},
		{ID: "SILVER", Title: "Silver", Tickets: 9},
	}, catalog)
}

func TestLoadCatalogRejectsZeroTickets(t *testing.T) {
	_, err := models.ParseCatalog([]byte("items:\n  - id: A\n    title: a\n    tickets: 0\n"))
	assert.ErrorIs(t, err, models.ErrInvalidCatalog)
}

func TestLoadCatalogDefault(t *testing.T) {
	catalog, err := models.LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCatalog(), catalog)
}

func TestInvoicePayload(t *testing.T) {
	payload := models.NewInvoicePayload("42")

	assert.LessOrEqual(t, len(payload), 128)

	userID, err := models.ParseInvoicePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "42", userID)

	for _, bad := range []string{"", "stars:42", "coins:42:x", "stars:guest:" + models.NewRequestID(), "stars:42:not-a-uuid"} {
		_, err := models.ParseInvoicePayload(bad)
		assert.Error(t, err, bad)
	}
}

func TestRequestIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := models.NewRequestID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestGrantReason(t *testing.T) {
	assert.True(t, models.GrantReasonStarsPurchase.Valid())
	assert.True(t, models.GrantReasonAdmin.Valid())
	assert.False(t, models.GrantReason("gift").Valid())
}
