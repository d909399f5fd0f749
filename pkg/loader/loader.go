// Package loader groups dataset items into batches, fetching the items of
// each batch concurrently.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/mmbcd/pkg/tensor"
	"github.com/menta2k/mmbcd/pkg/types"
)

// Source is an indexable collection of items. *dataset.Dataset satisfies it.
type Source interface {
	Len() int
	Get(i int) (types.Item, error)
}

// Loader yields batches of a Source in order, or in a shuffled order.
type Loader struct {
	src       Source
	batchSize int
	workers   int

	mu    sync.Mutex
	order []int
	pos   int
}

// New creates a loader. workers bounds the number of concurrent Get calls.
func New(src Source, batchSize, workers int) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if workers <= 0 {
		workers = 1
	}
	order := make([]int, src.Len())
	for i := range order {
		order[i] = i
	}
	return &Loader{src: src, batchSize: batchSize, workers: workers, order: order}, nil
}

// Shuffle permutes the visiting order and rewinds the loader.
func (l *Loader) Shuffle(rng *rand.Rand) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rng.Shuffle(len(l.order), func(i, j int) {
		l.order[i], l.order[j] = l.order[j], l.order[i]
	})
	l.pos = 0
}

// Reset rewinds the loader without changing its order.
func (l *Loader) Reset() {
	l.mu.Lock()
	l.pos = 0
	l.mu.Unlock()
}

// Len returns the number of batches per pass
func (l *Loader) Len() int {
	return (len(l.order) + l.batchSize - 1) / l.batchSize
}

// Next returns the next batch, or io.EOF once every item has been served.
// The last batch may be short.
func (l *Loader) Next(ctx context.Context) (*types.Batch, error) {
	l.mu.Lock()
	if l.pos >= len(l.order) {
		l.mu.Unlock()
		return nil, io.EOF
	}
	end := l.pos + l.batchSize
	if end > len(l.order) {
		end = len(l.order)
	}
	indices := append([]int(nil), l.order[l.pos:end]...)
	l.pos = end
	l.mu.Unlock()

	items := make([]types.Item, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for j, idx := range indices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			item, err := l.src.Get(idx)
			if err != nil {
				return fmt.Errorf("item %d: %w", idx, err)
			}
			items[j] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Collate(items)
}

// Each calls fn for every remaining batch.
func (l *Loader) Each(ctx context.Context, fn func(*types.Batch) error) error {
	for {
		batch, err := l.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}

// Collate stacks items into a batch, keeping their order.
func Collate(items []types.Item) (*types.Batch, error) {
	b := &types.Batch{
		Indices: make([]int, len(items)),
		Prompts: make([]string, len(items)),
		Labels:  make([]int, len(items)),
	}
	crops := make([]*tensor.Tensor, len(items))
	for i, it := range items {
		b.Indices[i] = it.Index
		b.Prompts[i] = it.Prompt
		b.Labels[i] = it.Label
		crops[i] = it.Crops
	}
	stacked, err := tensor.Stack(crops)
	if err != nil {
		return nil, fmt.Errorf("failed to stack crops: %w", err)
	}
	b.Crops = stacked
	return b, nil
}
