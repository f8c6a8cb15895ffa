package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: -1})
	require.Error(t, err)

	f, err := New(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	assert.Equal(t, 2, cap(f.slots))
	assert.Equal(t, defaultNavigationTimeout, f.cfg.NavigationTimeout)
	assert.Equal(t, "body", f.cfg.WaitSelector)
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	f, err := New(Config{MaxParallel: 1})
	require.NoError(t, err)
	t.Cleanup(f.Close)

	require.NoError(t, f.acquire(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, f.acquire(ctx))

	f.release()
	require.NoError(t, f.acquire(context.Background()))
	f.release()
}

func TestDocumentResponseCapturesFirstDocument(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500},
	})
	status, _ := doc.snapshot()
	assert.Zero(t, status)

	doc.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  404,
			Headers: network.Headers{"Content-Type": "text/html"},
		},
	})
	doc.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	status, headers := doc.snapshot()
	assert.Equal(t, 404, status)
	assert.Equal(t, "text/html", headers.Get("Content-Type"))
}
