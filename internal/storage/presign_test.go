package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey("relatorio final 2026.pdf")

	assert.True(t, strings.HasSuffix(key, "-relatorio_final_2026.pdf"))
	assert.NotContains(t, key, " ")

	// Unique per call.
	assert.NotEqual(t, key, ObjectKey("relatorio final 2026.pdf"))
}

func TestPublicURL(t *testing.T) {
	u, err := NewUploader("storage.example.com", "ak", "sk", "campanhas", "https://files.example.com/", true)
	require.NoError(t, err)

	assert.Equal(t, "https://files.example.com/abc-doc.pdf", u.PublicURL("abc-doc.pdf"))
}
