package progress

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_MonotonicAndComplete(t *testing.T) {
	payload := bytes.Repeat([]byte("bilibili"), 1000)

	var states []State

	r := NewReader(iotest.OneByteReader(bytes.NewReader(payload)), uint64(len(payload)), func(s State) {
		states = append(states, s)
	})

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.Len(t, states, len(payload))

	for i := 1; i < len(states); i++ {
		assert.GreaterOrEqual(t, states[i].Received, states[i-1].Received)
	}

	last := states[len(states)-1]
	assert.Equal(t, uint64(len(payload)), last.Received)
	assert.True(t, last.Done())
	assert.InDelta(t, 100.0, last.Percent(), 0.001)
	assert.Equal(t, last, r.State())
}

func TestReader_UnknownTotal(t *testing.T) {
	var last State

	r := NewReader(bytes.NewReader([]byte("abc")), 0, func(s State) { last = s })

	_, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, State{Total: 0, Received: 3}, last)
	assert.False(t, last.Done())
	assert.Equal(t, -1.0, last.Percent())
}

func TestReader_NilCallback(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("abc")), 3, nil)

	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, r.State().Done())
}
