package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStack(t *testing.T) {
	a, err := FromData([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	b, err := FromData([]float32{5, 6, 7, 8}, 2, 2)
	require.NoError(t, err)

	s, err := Stack([]*Tensor{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, s.Shape)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, s.Data)
	assert.Equal(t, []float32{5, 6, 7, 8}, s.Index(1).Data)
	assert.Equal(t, []int64{2, 2, 2}, s.Int64Shape())
}

func TestStackShapeMismatch(t *testing.T) {
	_, err := Stack([]*Tensor{New(2, 2), New(3)})
	assert.True(t, errors.Is(err, ErrShape))

	_, err = Stack(nil)
	assert.True(t, errors.Is(err, ErrShape))
}

func TestFromDataSize(t *testing.T) {
	_, err := FromData(make([]float32, 5), 2, 3)
	assert.True(t, errors.Is(err, ErrShape))
	assert.Equal(t, 24, Size([]int{2, 3, 4}))
}
