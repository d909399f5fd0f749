package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/mmbcd/pkg/tensor"
	"github.com/menta2k/mmbcd/pkg/types"
)

type fakeSource struct {
	n      int
	failAt int
	calls  int32
}

func (f *fakeSource) Len() int { return f.n }

func (f *fakeSource) Get(i int) (types.Item, error) {
	atomic.AddInt32(&f.calls, 1)
	if i == f.failAt {
		return types.Item{}, errors.New("broken image")
	}
	crops := tensor.New(2, 3, 2, 2)
	for j := range crops.Data {
		crops.Data[j] = float32(i)
	}
	return types.Item{Index: i, Crops: crops, Prompt: fmt.Sprintf("prompt %d", i), Label: i % 2}, nil
}

func TestNextOrderAndShapes(t *testing.T) {
	src := &fakeSource{n: 7, failAt: -1}
	l, err := New(src, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())

	var sizes []int
	var seen []int
	err = l.Each(context.Background(), func(b *types.Batch) error {
		sizes = append(sizes, b.Len())
		assert.Equal(t, []int{b.Len(), 2, 3, 2, 2}, b.Crops.Shape)
		for j, idx := range b.Indices {
			assert.Equal(t, fmt.Sprintf("prompt %d", idx), b.Prompts[j])
			assert.Equal(t, idx%2, b.Labels[j])
			assert.Equal(t, float32(idx), b.Crops.Index(j).Data[0])
		}
		seen = append(seen, b.Indices...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, seen)

	_, err = l.Next(context.Background())
	assert.Equal(t, io.EOF, err)

	l.Reset()
	b, err := l.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, b.Indices)
}

func TestShuffle(t *testing.T) {
	src := &fakeSource{n: 20, failAt: -1}
	l, err := New(src, 6, 2)
	require.NoError(t, err)
	l.Shuffle(rand.New(rand.NewSource(3)))

	var seen []int
	require.NoError(t, l.Each(context.Background(), func(b *types.Batch) error {
		seen = append(seen, b.Indices...)
		return nil
	}))
	assert.Len(t, seen, 20)
	sorted := append([]int(nil), seen...)
	sort.Ints(sorted)
	for i, v := range sorted {
		assert.Equal(t, i, v)
	}
}

func TestNextError(t *testing.T) {
	src := &fakeSource{n: 5, failAt: 3}
	l, err := New(src, 5, 2)
	require.NoError(t, err)

	_, err = l.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 3")
}

func TestNextCancelled(t *testing.T) {
	src := &fakeSource{n: 4, failAt: -1}
	l, err := New(src, 4, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Next(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewInvalid(t *testing.T) {
	_, err := New(&fakeSource{n: 1}, 0, 1)
	assert.Error(t, err)
}
