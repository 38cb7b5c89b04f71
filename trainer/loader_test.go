package trainer

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counting int

func (c counting) Len() int { return int(c) }

func (c counting) Item(idx int) (interface{}, error) { return idx, nil }

func (c counting) DType() reflect.Type { return reflect.TypeOf(0) }

func epochOrder(t *testing.T, ctx context.Context, ds counting, batchSize int, shuffle bool) []string {
	t.Helper()
	dl, err := loader(ds, batchSize, shuffle)
	require.NoError(t, err)

	var order []string
	epoch := func() string {
		var batches []string
		require.NoError(t, eachBatch(ctx, dl, shuffle, func(sample interface{}) error {
			batches = append(batches, fmt.Sprint(sample))
			return nil
		}))
		return fmt.Sprint(batches)
	}
	for i := 0; i < 3; i++ {
		order = append(order, epoch())
	}
	return order
}

func TestLoaderBatchLargerThanDataset(t *testing.T) {
	dl, err := loader(counting(3), 8, false)
	require.NoError(t, err)

	n := 0
	require.NoError(t, eachBatch(context.Background(), dl, false, func(sample interface{}) error {
		n++
		return nil
	}))
	assert.Equal(t, 1, n)
}

func TestEachBatchReshuffles(t *testing.T) {
	order := epochOrder(t, context.Background(), counting(64), 64, true)
	// three equal permutations of 64 items are practically impossible.
	assert.False(t, order[0] == order[1] && order[1] == order[2], "same order every epoch: %v", order[0])
}

func TestEachBatchKeepsOrderWithoutShuffle(t *testing.T) {
	order := epochOrder(t, context.Background(), counting(10), 4, false)
	assert.Equal(t, order[0], order[1])
	assert.Equal(t, order[1], order[2])
}

func TestEachBatchCancelled(t *testing.T) {
	dl, err := loader(counting(4), 2, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = eachBatch(ctx, dl, false, func(sample interface{}) error {
		t.Fatal("batch loaded after cancel")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
