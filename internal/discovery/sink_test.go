package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiSink(t *testing.T) {
	t.Parallel()

	a, b := &memorySink{}, &memorySink{}
	sink := NewMultiSink(a, nil, b)
	rows := []OutputRow{{Name: "Acme AG", Tier: TierPrimary, Rank: 1}}

	require.NoError(t, sink.WriteRows(context.Background(), rows))
	assert.Equal(t, rows, a.written())
	assert.Equal(t, rows, b.written())
	require.NoError(t, sink.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	failing := NewMultiSink(&memorySink{err: errors.New("nope")}, b)
	assert.Error(t, failing.WriteRows(context.Background(), rows))
	assert.Len(t, b.written(), 1)
}
