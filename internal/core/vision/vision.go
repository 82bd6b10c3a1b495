// Package vision defines the contracts for the external computer-vision
// primitives the system consumes: a face detector, a trainable face
// classifier and a camera frame source. The concrete implementations live
// in internal/integrations/opencv; everything above this package works on
// plain image types so it can run without OpenCV.
package vision

import (
	"errors"
	"image"

	"facegate/internal/config"
)

// ErrCameraUnavailable is returned when the capture device cannot be opened.
var ErrCameraUnavailable = errors.New("camera unavailable")

// ErrModelNotLoaded is returned by a classifier that was asked to predict
// before being trained or loaded.
var ErrModelNotLoaded = errors.New("recognition model not loaded")

// Detector finds axis-aligned face bounding boxes in a grayscale image.
type Detector interface {
	Detect(img *image.Gray, p config.DetectParams) ([]image.Rectangle, error)
}

// Prediction is a single classifier answer. Distance is an inverse-confidence
// metric on the classifier's native scale: smaller means a closer match.
type Prediction struct {
	Label    int
	Distance float64
}

// Recognizer is the trainable face classifier. Train and Predict are fast,
// uninterruptible primitives bounded only by input size; no context is
// threaded through them.
type Recognizer interface {
	Train(samples []*image.Gray, labels []int) error
	Predict(sample *image.Gray) (Prediction, error)
	SaveFile(path string) error
	LoadFile(path string) error
	Close() error
}

// FrameSource yields camera frames. Read blocks until the next frame is
// available. The source is exclusively owned by one workflow at a time and
// must be closed on every exit path.
type FrameSource interface {
	Read() (image.Image, error)
	Close() error
}

// LargestBox returns the box with the greatest area, for capture flows that
// act on the most prominent face only. ok is false for an empty slice.
func LargestBox(boxes []image.Rectangle) (image.Rectangle, bool) {
	if len(boxes) == 0 {
		return image.Rectangle{}, false
	}
	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Dx()*b.Dy() > best.Dx()*best.Dy() {
			best = b
		}
	}
	return best, true
}
