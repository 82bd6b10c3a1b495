package opencv

import (
	"fmt"
	"image"
	"os"

	"facegate/internal/core/vision"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// LBPHRecognizer wraps the OpenCV contrib LBPH face recognizer behind the
// vision.Recognizer interface.
type LBPHRecognizer struct {
	rec   *contrib.LBPHFaceRecognizer
	ready bool
}

// NewLBPHRecognizer creates an untrained recognizer instance.
func NewLBPHRecognizer() *LBPHRecognizer {
	return &LBPHRecognizer{rec: contrib.NewLBPHFaceRecognizer()}
}

// NewRecognizer is the vision.Recognizer factory used by the model
// lifecycle manager.
func NewRecognizer() vision.Recognizer {
	return NewLBPHRecognizer()
}

// Train fits the LBPH model on the labeled samples.
func (r *LBPHRecognizer) Train(samples []*image.Gray, labels []int) error {
	if len(samples) == 0 || len(samples) != len(labels) {
		return fmt.Errorf("invalid training input: %d samples, %d labels", len(samples), len(labels))
	}

	mats := make([]gocv.Mat, 0, len(samples))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	for _, s := range samples {
		mat, err := gocv.ImageGrayToMatGray(s)
		if err != nil {
			return fmt.Errorf("failed to convert training sample: %w", err)
		}
		mats = append(mats, mat)
	}

	r.rec.Train(mats, labels)
	r.ready = true
	return nil
}

// Predict classifies one face crop and returns the label with its LBPH
// distance. Smaller distance means a closer match.
func (r *LBPHRecognizer) Predict(face *image.Gray) (vision.Prediction, error) {
	if !r.ready {
		return vision.Prediction{}, vision.ErrModelNotLoaded
	}
	mat, err := gocv.ImageGrayToMatGray(face)
	if err != nil {
		return vision.Prediction{}, fmt.Errorf("failed to convert face crop: %w", err)
	}
	defer mat.Close()

	resp := r.rec.PredictExtendedResponse(mat)
	return vision.Prediction{
		Label:    int(resp.Label),
		Distance: float64(resp.Confidence),
	}, nil
}

// SaveFile persists the trained model state.
func (r *LBPHRecognizer) SaveFile(path string) error {
	if !r.ready {
		return vision.ErrModelNotLoaded
	}
	r.rec.SaveFile(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model file %s was not written: %w", path, err)
	}
	return nil
}

// LoadFile restores a persisted model state.
func (r *LBPHRecognizer) LoadFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model file %s not found: %w", path, err)
	}
	r.rec.LoadFile(path)
	r.ready = true
	return nil
}

// Close releases the recognizer. The contrib binding frees its native
// state with the process; nothing to release per instance.
func (r *LBPHRecognizer) Close() error {
	r.ready = false
	return nil
}
