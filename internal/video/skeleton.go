package video

// SkeletonEdge connects two named keypoints with a drawing color.
type SkeletonEdge struct {
	Start string
	End   string
	Color [3]byte
}

// Limb palette: blue for the head, green for the left side, orange for
// the right, white for the torso box.
var (
	headColor  = [3]byte{51, 153, 255}
	leftColor  = [3]byte{0, 255, 0}
	rightColor = [3]byte{255, 128, 0}
	torsoColor = [3]byte{255, 255, 255}
)

// CocoSkeleton is the 17-keypoint COCO body topology.
var CocoSkeleton = []SkeletonEdge{
	// Head
	{"nose", "left_eye", headColor},
	{"nose", "right_eye", headColor},
	{"left_eye", "right_eye", headColor},
	{"left_eye", "left_ear", headColor},
	{"right_eye", "right_ear", headColor},

	// Arms
	{"left_shoulder", "left_elbow", leftColor},
	{"left_elbow", "left_wrist", leftColor},
	{"right_shoulder", "right_elbow", rightColor},
	{"right_elbow", "right_wrist", rightColor},

	// Torso
	{"left_shoulder", "right_shoulder", torsoColor},
	{"left_shoulder", "left_hip", leftColor},
	{"right_shoulder", "right_hip", rightColor},
	{"left_hip", "right_hip", torsoColor},

	// Legs
	{"left_hip", "left_knee", leftColor},
	{"left_knee", "left_ankle", leftColor},
	{"right_hip", "right_knee", rightColor},
	{"right_knee", "right_ankle", rightColor},
}
