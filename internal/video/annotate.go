package video

import (
	"math"

	"gaitserver/internal/domain"
)

// RenderFlags select which overlays to draw.
type RenderFlags struct {
	ShowKeypoints bool
	ShowSkeleton  bool
}

// Annotator draws joint markers and skeleton segments onto frames in
// place. Joints below the confidence threshold are skipped; frames with
// no qualifying joints pass through untouched.
type Annotator struct {
	Edges        []SkeletonEdge
	Threshold    float64
	MarkerRadius int
	LineWidth    int
	// Alpha blends overlays with the underlying image, 1 is opaque.
	Alpha float64
}

// NewAnnotator returns an annotator with the COCO topology and the
// drawing style used for output videos.
func NewAnnotator(threshold float64) *Annotator {
	return &Annotator{
		Edges:        CocoSkeleton,
		Threshold:    threshold,
		MarkerRadius: 4,
		LineWidth:    2,
		Alpha:        0.6,
	}
}

var markerColor = [3]byte{255, 0, 0}

// Annotate overlays the joints onto f according to flags.
func (a *Annotator) Annotate(f *Frame, joints domain.Joints, flags RenderFlags) {
	if len(joints) == 0 || !(flags.ShowKeypoints || flags.ShowSkeleton) {
		return
	}
	if flags.ShowSkeleton {
		for _, e := range a.Edges {
			start, ok1 := a.qualified(joints, e.Start)
			end, ok2 := a.qualified(joints, e.End)
			if !ok1 || !ok2 {
				continue
			}
			a.line(f, start, end, e.Color)
		}
	}
	if flags.ShowKeypoints {
		for name := range joints {
			kp, ok := a.qualified(joints, name)
			if !ok {
				continue
			}
			a.disc(f, kp, markerColor)
		}
	}
}

// qualified returns the rounded pixel position of a joint that is present
// and above the confidence threshold.
func (a *Annotator) qualified(joints domain.Joints, name string) ([2]int, bool) {
	kp, ok := joints[name]
	if !ok || kp.Confidence < a.Threshold {
		return [2]int{}, false
	}
	return [2]int{int(math.Round(kp.X)), int(math.Round(kp.Y))}, true
}

// disc draws a filled circle marker.
func (a *Annotator) disc(f *Frame, center [2]int, c [3]byte) {
	r := a.MarkerRadius
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				f.blendPixel(center[0]+dx, center[1]+dy, c, a.Alpha)
			}
		}
	}
}

// line draws a thick segment between two pixel positions (Bresenham with
// a square brush).
func (a *Annotator) line(f *Frame, p0, p1 [2]int, c [3]byte) {
	x0, y0 := p0[0], p0[1]
	x1, y1 := p1[0], p1[1]
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		a.brush(f, x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func (a *Annotator) brush(f *Frame, x, y int, c [3]byte) {
	half := a.LineWidth / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			f.blendPixel(x+dx, y+dy, c, a.Alpha)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// MatchEstimationFrame maps an output frame index onto the keypoint
// sequence when the render rate differs from the estimation rate: the
// nearest preceding estimation frame wins, positions are never
// interpolated between frames.
func MatchEstimationFrame(index int, renderFPS, estimationFPS float64) int {
	if renderFPS <= 0 || estimationFPS <= 0 || renderFPS == estimationFPS {
		return index
	}
	return int(float64(index) * estimationFPS / renderFPS)
}
