package partition

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	m := NewMemory()

	res, err := m.Create(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant_ws_1", res.PartitionName)
	assert.False(t, res.AlreadyExisted)
}

func TestCreateIdempotent(t *testing.T) {
	m := NewMemory()

	first, err := m.Create(context.Background(), "ws-1")
	require.NoError(t, err)

	second, err := m.Create(context.Background(), "ws-1")
	require.NoError(t, err)

	assert.Equal(t, first.PartitionName, second.PartitionName)
	assert.True(t, second.AlreadyExisted)
	assert.Equal(t, 1, m.Count())
}

func TestCreateConcurrentDuplicates(t *testing.T) {
	m := NewMemory()

	var wg sync.WaitGroup
	results := make([]CreateResult, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := m.Create(context.Background(), "ws-1")
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, res := range results {
		assert.Equal(t, "tenant_ws_1", res.PartitionName)
		if !res.AlreadyExisted {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, m.Count())
}

func TestDrop(t *testing.T) {
	m := NewMemory()

	res, err := m.Create(context.Background(), "ws-1")
	require.NoError(t, err)

	require.NoError(t, m.Drop(context.Background(), res.PartitionName))
	assert.Equal(t, 0, m.Count())

	err = m.Drop(context.Background(), res.PartitionName)
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}
