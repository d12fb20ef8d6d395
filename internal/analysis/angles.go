package analysis

import (
	"math"

	"gaitserver/internal/domain"
)

type vec struct {
	x, y float64
}

func (a vec) sub(b vec) vec { return vec{a.x - b.x, a.y - b.y} }

// Image coordinates grow downward, so "up" is negative y.
var (
	verticalUp   = vec{0, -1}
	verticalDown = vec{0, 1}
)

// angleBetween computes the angle between two 2D vectors in degrees,
// clamped into [0, 180]. Near-zero magnitudes yield 0 rather than
// dividing by zero.
func angleBetween(a, b vec) float64 {
	dot := a.x*b.x + a.y*b.y
	norm := math.Hypot(a.x, a.y) * math.Hypot(b.x, b.y)
	if norm < 1e-8 {
		return 0
	}
	cos := dot / norm
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// signedBySide applies a direction sign to an unsigned angle for
// side-view metrics. A runner filmed from their right moves toward +X,
// from their left toward -X; a positive result always means forward.
func signedBySide(angle float64, side domain.Side, displacementX float64) float64 {
	forward := displacementX > 0
	if side == domain.SideLeft {
		forward = displacementX < 0
	}
	if forward {
		return angle
	}
	return -angle
}

// point looks up a joint position if it is present and clears the
// confidence threshold.
func point(joints domain.Joints, name string, threshold float64) (vec, bool) {
	kp, ok := joints[name]
	if !ok || kp.Confidence < threshold {
		return vec{}, false
	}
	return vec{kp.X, kp.Y}, true
}
