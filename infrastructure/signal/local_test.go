package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFansOut(t *testing.T) {
	l := NewLocal()
	var a, b int
	require.NoError(t, l.Subscribe(context.Background(), func() { a++ }))
	require.NoError(t, l.Subscribe(context.Background(), func() { b++ }))

	require.NoError(t, l.Publish(context.Background()))
	require.NoError(t, l.Publish(context.Background()))
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}
