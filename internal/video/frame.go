// Package video drives streaming decode, annotation and encode of video
// through ffmpeg subprocesses. Frames move through the pipeline one at a
// time; no stage ever buffers a whole video.
package video

// Frame is one decoded video frame in packed RGB order, 8 bits per
// channel, row-major. Index counts decoded frames from zero.
type Frame struct {
	Index  int
	Width  int
	Height int
	Pix    []byte // len = Width*Height*3
}

// NewFrame allocates a zeroed frame.
func NewFrame(index, width, height int) *Frame {
	return &Frame{Index: index, Width: width, Height: height, Pix: make([]byte, width*height*3)}
}

// blendPixel writes an RGB color at (x, y) mixed with the existing pixel.
// alpha 1 is fully opaque. Out-of-bounds coordinates are ignored so
// drawing code does not need to clip.
func (f *Frame) blendPixel(x, y int, c [3]byte, alpha float64) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	off := (y*f.Width + x) * 3
	for i := 0; i < 3; i++ {
		old := float64(f.Pix[off+i])
		f.Pix[off+i] = byte(alpha*float64(c[i]) + (1-alpha)*old)
	}
}
