package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs("t")
	assert.Equal(t, "t-1", gen.Generate())
	assert.Equal(t, "t-2", gen.Generate())

	gen.Reset()
	assert.Equal(t, "t-1", gen.Generate())

	assert.Equal(t, "task-1", NewSequentialIDs("").Generate())
}

func TestSequentialIDs_Concurrent(t *testing.T) {
	gen := NewSequentialIDs("c")
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1000)
}

func TestOpenStoreAndBuilders(t *testing.T) {
	s := OpenStore(t)
	got, err := s.ListScope(context.Background(), Root())
	require.NoError(t, err)
	assert.Empty(t, got)

	task := Task("b", "a", "V")
	assert.True(t, ChildrenOf("a").Contains(task))
	assert.False(t, Root().Contains(task))
}
