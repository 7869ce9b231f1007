package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clinextract"
)

func TestPublishIsIdempotentBySectionID(t *testing.T) {
	var mu sync.Mutex
	var calls int
	sink := SinkFunc(func(ctx context.Context, publication clinextract.SectionPublication) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	})
	p := New(Config{}, sink)

	pub := clinextract.SectionPublication{SectionID: "s1"}
	require.NoError(t, p.Publish(context.Background(), pub))
	require.NoError(t, p.Publish(context.Background(), pub))

	assert.Equal(t, 1, calls)
	assert.True(t, p.Delivered("s1"))
}

func TestPublishRetriesThenFails(t *testing.T) {
	sink := SinkFunc(func(ctx context.Context, publication clinextract.SectionPublication) error {
		return errors.New("boom")
	})
	p := New(Config{MaxAttempts: 2, BaseDelay: time.Millisecond}, sink)

	err := p.Publish(context.Background(), clinextract.SectionPublication{SectionID: "s1"})
	require.Error(t, err)
	assert.False(t, p.Delivered("s1"))
}
