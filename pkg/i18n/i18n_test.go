package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalize(t *testing.T) {
	Init()

	assert.Equal(t, "Variant not found.", Localize("variant_not_found", nil, "en"))
	assert.Equal(t, "Varian tidak ditemukan.", Localize("variant_not_found", nil, "id-ID,id;q=0.9"))
	assert.Equal(t, "Insufficient stock for Dog Food.",
		Localize("insufficient_stock", map[string]interface{}{"Product": "Dog Food"}, "fr"))
	assert.Equal(t, "no_such_message", Localize("no_such_message", nil, "en"))
}

func TestLoadOverridesMessages(t *testing.T) {
	Init()

	dir := t.TempDir()
	file := filepath.Join(dir, "active.en.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"busy": "Try later."}`), 0o600))
	require.NoError(t, Load(file))

	assert.Equal(t, "Try later.", Localize("busy", nil, "en"))
}
