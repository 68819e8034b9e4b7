package memory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer store.Close()

	for i, c := range []string{"one", "two", "three"} {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		require.NoError(t, store.Append(ctx, Record{ChatID: "c1", Role: role, Content: c}))
	}
	require.NoError(t, store.Append(ctx, Record{
		ChatID:  "c1",
		Role:    "assistant",
		Content: "four",
		Payload: json.RawMessage(`{"rows":2}`),
	}))
	require.NoError(t, store.Append(ctx, Record{ChatID: "c2", Role: "user", Content: "elsewhere"}))

	recent, err := store.Recent(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Content)
	assert.Equal(t, "four", recent[1].Content)
	assert.JSONEq(t, `{"rows":2}`, string(recent[1].Payload))
	assert.Nil(t, recent[0].Payload)
	assert.False(t, recent[0].CreatedAt.IsZero())

	all, err := store.All(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, store.Delete(ctx, "c1"))
	all, err = store.All(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, all)

	other, err := store.All(ctx, "c2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
	require.NoError(t, store.Ping(ctx))
}
