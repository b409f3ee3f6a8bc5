package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square around downtown Tampa, [lon, lat].
var tampaSquare = [][]float64{
	{-82.50, 27.90},
	{-82.40, 27.90},
	{-82.40, 28.00},
	{-82.50, 28.00},
}

func TestNewRing_Validation(t *testing.T) {
	_, err := NewRing([][]float64{{0, 0}, {1, 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 3 points")

	_, err = NewRing([][]float64{{0, 0}, {1}, {1, 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "point 1")
}

func TestRing_Contains(t *testing.T) {
	r, err := NewRing(tampaSquare)
	require.NoError(t, err)

	tests := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"center", 27.95, -82.45, true},
		{"outside east", 27.95, -82.30, false},
		{"outside north", 28.10, -82.45, false},
		{"swapped order is outside", -82.45, 27.95, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Contains(tt.lat, tt.lon))
		})
	}
}

func TestRing_ClosedInput(t *testing.T) {
	closed := append(append([][]float64{}, tampaSquare...), tampaSquare[0])
	r, err := NewRing(closed)
	require.NoError(t, err)
	assert.True(t, r.Contains(27.95, -82.45))
}

func TestInBoundary_Invalid(t *testing.T) {
	assert.False(t, InBoundary(nil, 27.95, -82.45))
	assert.True(t, InBoundary(tampaSquare, 27.95, -82.45))
}

func TestHaversineMiles(t *testing.T) {
	assert.InDelta(t, 0, HaversineMiles(27.95, -82.45, 27.95, -82.45), 1e-9)
	// Tampa to Orlando is roughly 78 miles as the crow flies.
	assert.InDelta(t, 78, HaversineMiles(27.9506, -82.4572, 28.5383, -81.3792), 3)
}
