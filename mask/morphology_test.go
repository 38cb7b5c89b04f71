package mask_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sugarme/segforest/mask"
)

func TestErodeDilateSquare(t *testing.T) {
	src := mat.NewDense(5, 5, []float64{
		0, 0, 0, 0, 0,
		0, 1, 1, 1, 0,
		0, 1, 1, 1, 0,
		0, 1, 1, 1, 0,
		0, 0, 0, 0, 0,
	})

	eroded, err := mask.ErodeSquare(src, 3)
	require.NoError(t, err)
	require.Equal(t, 1.0, mat.Sum(eroded))
	require.Equal(t, 1.0, eroded.At(2, 2))

	dilated, err := mask.DilateSquare(eroded, 3)
	require.NoError(t, err)
	require.True(t, mat.Equal(src, dilated))

	_, err = mask.ErodeSquare(src, 2)
	require.Error(t, err)
}

func TestBorderIgnored(t *testing.T) {
	full := mat.NewDense(3, 3, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1})
	eroded, err := mask.ErodeSquare(full, 3)
	require.NoError(t, err)
	require.True(t, mat.Equal(full, eroded))
}

func TestOpenClose(t *testing.T) {
	speck := mat.NewDense(5, 5, nil)
	speck.Set(2, 2, 1)
	opened, err := mask.Open(speck, 3, 1)
	require.NoError(t, err)
	require.Equal(t, 0.0, mat.Sum(opened))

	hole := mat.NewDense(5, 5, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	closed, err := mask.Close(hole, 3, 1)
	require.NoError(t, err)
	require.Equal(t, 25.0, mat.Sum(closed))
}
