// Package geometry converts pixel positions on a scene into scene-unit distances.
package geometry

import (
	"math"

	"github.com/osa030/zonebox/internal/domain/scene"
)

// Point is a centre point in pixels.
type Point struct {
	X, Y float64
}

// Distance returns the distance between a and b in scene units.
// A non-positive unitsPerGrid falls back to scene.DefaultGridDistance.
// A zero gridSize yields +Inf; callers guard the radius, not the grid.
func Distance(a, b Point, gridSize, unitsPerGrid float64) float64 {
	if unitsPerGrid <= 0 {
		unitsPerGrid = scene.DefaultGridDistance
	}
	pixels := math.Hypot(b.X-a.X, b.Y-a.Y)
	return (pixels / gridSize) * unitsPerGrid
}
