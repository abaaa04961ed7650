package campaign

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "campaigns.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreCreateAndGetStatus(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Create("instance-1", contactList(3), "Olá {name}", nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	info, err := store.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)
	assert.Equal(t, "", info.LastAction)
	assert.Equal(t, 0, info.SentCount)
	assert.Equal(t, 0, info.FailedCount)
}

func TestStoreGetStatusUnknownID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetStatus("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRecordOutcome(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Create("instance-1", contactList(3), "msg", nil)
	require.NoError(t, err)

	require.NoError(t, store.RecordOutcome(id, true, "Mensagem enviada para Contato 0 (5511999990000)"))
	require.NoError(t, store.RecordOutcome(id, true, "Mensagem enviada para Contato 1 (5511999990001)"))
	require.NoError(t, store.RecordOutcome(id, false, "Falha ao enviar para Contato 2 (5511999990002): recipient is not on whatsapp"))

	info, err := store.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, 2, info.SentCount)
	assert.Equal(t, 1, info.FailedCount)
	assert.Contains(t, info.LastAction, "Falha ao enviar para Contato 2")

	// Polling is read-only: repeated reads see the same snapshot.
	again, err := store.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, info, again)

	assert.ErrorIs(t, store.RecordOutcome("nope", true, "x"), ErrNotFound)
}

func TestStoreFinish(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Create("instance-1", contactList(2), "msg", nil)
	require.NoError(t, err)

	require.NoError(t, store.Finish(id, "Finalizada (2 enviadas, 0 falhas)", "Campanha finalizada: 2 enviadas, 0 falhas"))

	info, err := store.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, "Finalizada (2 enviadas, 0 falhas)", info.Status)
	assert.Equal(t, "Campanha finalizada: 2 enviadas, 0 falhas", info.LastAction)

	assert.ErrorIs(t, store.Finish("nope", "x", "y"), ErrNotFound)
}

func TestStoreListHistory(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Create("instance-1", contactList(2), "msg", nil)
	require.NoError(t, err)
	second, err := store.Create("instance-1", contactList(5), "msg", &Attachment{
		URL: "https://files.example.com/k-doc.pdf", MimeType: "application/pdf", FileName: "doc.pdf",
	})
	require.NoError(t, err)
	_, err = store.Create("instance-2", contactList(1), "msg", nil)
	require.NoError(t, err)

	history, err := store.ListHistory("instance-1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Newest first.
	assert.Equal(t, second, history[0].ID)
	assert.Equal(t, first, history[1].ID)
	assert.Equal(t, 5, history[0].TotalContacts)
	assert.Equal(t, StatusRunning, history[0].Status)
	assert.False(t, history[0].StartTime.IsZero())

	empty, err := store.ListHistory("instance-3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
