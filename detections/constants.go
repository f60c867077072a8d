package detections

const (
	DefaultInputSize     = 640
	DefaultConfThreshold = 0.25
	DefaultIoUThreshold  = 0.7
	DefaultMaxDetections = 300

	// LetterboxPad is the gray level used to fill the letterbox border.
	LetterboxPad = 114

	// BoxChannels counts the cx, cy, w, h rows that precede the class scores.
	BoxChannels = 4
)
