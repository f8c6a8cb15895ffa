package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/concurso-crawler/internal/storage"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	payload := []byte("content")
	uri, err := store.PutObject(ctx, "state/data.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://state/data.json", uri)

	payload[0] = 'C'
	got, err := store.GetObject(ctx, "state/data.json")
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))

	got[0] = 'X'
	again, err := store.GetObject(ctx, "state/data.json")
	require.NoError(t, err)
	assert.Equal(t, "content", string(again))
	assert.Equal(t, []string{"state/data.json"}, store.Paths())
}

func TestBlobStoreMissingAndFailures(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.GetObject(context.Background(), "nope")
	require.ErrorIs(t, err, storage.ErrObjectNotFound)

	store.SetFailPut(errors.New("disk full"))
	_, err = store.PutObject(context.Background(), "x", "", bytes.NewReader(nil))
	assert.EqualError(t, err, "disk full")
}
