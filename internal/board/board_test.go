package board

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndFormatCoordinate(t *testing.T) {
	row, col, err := ParseCoordinate("B5")
	require.NoError(t, err)
	require.Equal(t, 1, row)
	require.Equal(t, 4, col)
	require.Equal(t, "B5", FormatCoordinate(row, col))

	row, col, err = ParseCoordinate("J10")
	require.NoError(t, err)
	require.Equal(t, 9, row)
	require.Equal(t, 9, col)
}

func TestParseCoordinateRejectsInvalid(t *testing.T) {
	for _, c := range []string{"K1", "A0", "A11", "a1", "1A", ""} {
		_, _, err := ParseCoordinate(c)
		require.Error(t, err, c)
	}
}

func TestPlaceShipsRandomlyNoOverlap(t *testing.T) {
	b := New(Size)
	require.NoError(t, b.PlaceShipsRandomly(StandardFleet))
	require.Len(t, b.ships, len(StandardFleet))

	total := 0
	for _, s := range StandardFleet {
		total += s.Size
	}
	occupiedCells := 0
	for r := 0; r < b.size; r++ {
		for c := 0; c < b.size; c++ {
			if b.hidden[r][c] == cellShip {
				occupiedCells++
			}
		}
	}
	require.Equal(t, total, occupiedCells)
}

func TestFireAtHitMissAlreadyShot(t *testing.T) {
	b := New(4)
	b.hidden[0][0] = cellShip
	b.ships = []placedShip{{name: "Tester", remaining: map[[2]int]struct{}{{0, 0}: {}}}}

	result, sunk := b.FireAt(0, 0)
	require.Equal(t, ShotHit, result)
	require.Equal(t, "Tester", sunk)
	require.True(t, b.AllShipsSunk())

	result, sunk = b.FireAt(0, 0)
	require.Equal(t, ShotAlreadyShot, result)
	require.Empty(t, sunk)

	result, sunk = b.FireAt(1, 1)
	require.Equal(t, ShotMiss, result)
	require.Empty(t, sunk)
}

func TestFireAtHitWithoutSinking(t *testing.T) {
	b := New(4)
	b.hidden[0][0] = cellShip
	b.hidden[0][1] = cellShip
	b.ships = []placedShip{{name: "Destroyer", remaining: map[[2]int]struct{}{{0, 0}: {}, {0, 1}: {}}}}

	result, sunk := b.FireAt(0, 0)
	require.Equal(t, ShotHit, result)
	require.Empty(t, sunk)
	require.False(t, b.AllShipsSunk())
}

func TestOneShipFleetIsSingleCarrier(t *testing.T) {
	require.Len(t, OneShipFleet, 1)
	require.Equal(t, "Carrier", OneShipFleet[0].Name)
}
