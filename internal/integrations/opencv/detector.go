// Package opencv holds every gocv-backed implementation of the vision
// interfaces. This is the only package in the tree that links against
// OpenCV; everything above it works on plain image.Gray and can run
// without cgo.
package opencv

import (
	"fmt"
	"image"
	"os"

	"facegate/internal/config"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// CascadeDetector wraps a Haar cascade classifier.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
}

// NewCascadeDetector loads the cascade XML from disk.
func NewCascadeDetector(cascadeFile string) (*CascadeDetector, error) {
	if _, err := os.Stat(cascadeFile); err != nil {
		return nil, fmt.Errorf("cascade file %s not found: %w", cascadeFile, err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadeFile) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade file %s", cascadeFile)
	}
	log.Debugf("Loaded Haar cascade from %s", cascadeFile)
	return &CascadeDetector{classifier: classifier}, nil
}

// Detect runs the cascade over a grayscale frame with the given tuning.
func (d *CascadeDetector) Detect(frame *image.Gray, params config.DetectParams) ([]image.Rectangle, error) {
	mat, err := gocv.ImageGrayToMatGray(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	minSize := image.Pt(params.MinSize, params.MinSize)
	rects := d.classifier.DetectMultiScaleWithParams(
		mat, params.ScaleFactor, params.MinNeighbors, 0, minSize, image.Pt(0, 0))
	return rects, nil
}

// Close releases the cascade classifier.
func (d *CascadeDetector) Close() error {
	return d.classifier.Close()
}
