// Package training turns the photo corpus into a flat labeled dataset for
// the face classifier.
package training

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"facegate/internal/config"
	"facegate/internal/core/imaging"
	"facegate/internal/core/vision"

	log "github.com/sirupsen/logrus"
)

// ErrNoTrainableData is returned when no usable sample exists across all
// identities. Callers must treat it as a hard failure: there is nothing to
// train and recognition must not start.
var ErrNoTrainableData = errors.New("no trainable face data found")

// Set is one build's output. Labels index into LabelOrder: label i belongs
// to identity token LabelOrder[i]. Label assignment is deterministic only
// within one build; it must be persisted alongside the trained model and
// never re-derived later.
type Set struct {
	Samples    []*image.Gray
	Labels     []int
	LabelOrder []string
	Skipped    int // unreadable or face-less files
}

// Builder walks the photo corpus and assembles training sets.
type Builder struct {
	facesDir   string
	sampleSize int
	detector   vision.Detector
	detParams  config.DetectParams
	quality    *imaging.QualityFilter
	augmenter  *imaging.Augmenter
}

// NewBuilder creates a builder. Detection runs with the training-tuned
// parameters: stricter than live recognition to keep label noise out of the
// training corpus.
func NewBuilder(facesDir string, sampleSize int, detector vision.Detector, detParams config.DetectParams, quality *imaging.QualityFilter, augmenter *imaging.Augmenter) *Builder {
	return &Builder{
		facesDir:   facesDir,
		sampleSize: sampleSize,
		detector:   detector,
		detParams:  detParams,
		quality:    quality,
		augmenter:  augmenter,
	}
}

// Build assembles the dataset for the given identity tokens. Each token gets
// the dense integer label of its position in the slice; the same slice is
// returned as the label order. Unreadable files and files without a
// detectable face are skipped and counted.
func (b *Builder) Build(tokens []string) (*Set, error) {
	set := &Set{LabelOrder: tokens}

	for label, token := range tokens {
		dir := filepath.Join(b.facesDir, token)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warnf("Skipping unreadable photo directory %s: %v", dir, err)
			}
			continue
		}

		processed := 0
		for _, e := range entries {
			if e.IsDir() || !isImageFile(e.Name()) {
				continue
			}
			img, err := loadGray(filepath.Join(dir, e.Name()))
			if err != nil {
				log.Warnf("Skipping unreadable image %s: %v", e.Name(), err)
				set.Skipped++
				continue
			}
			if b.collect(set, img, label) {
				processed++
			} else {
				set.Skipped++
			}
		}
		log.Infof("Processed %d photos for identity %s", processed, token)
	}

	if len(set.Samples) == 0 {
		return nil, ErrNoTrainableData
	}
	log.Infof("Training set built: %d samples over %d identities (%d skipped)",
		len(set.Samples), len(tokens), set.Skipped)
	return set, nil
}

// collect extracts the face from one photo and appends its augmentation set.
// Reports whether the photo contributed any samples.
func (b *Builder) collect(set *Set, img *image.Gray, label int) bool {
	boxes, err := b.detector.Detect(img, b.detParams)
	if err != nil {
		log.Warnf("Detection failed on training photo: %v", err)
		return false
	}
	if len(boxes) == 0 {
		return false
	}

	// First detected box only; one face per enrollment photo.
	face := imaging.Resize(imaging.Crop(img, boxes[0]), b.sampleSize)
	if !b.quality.Validate(face) {
		return false
	}

	for _, variant := range b.augmenter.Apply(face) {
		set.Samples = append(set.Samples, variant)
		set.Labels = append(set.Labels, label)
	}
	return true
}

func loadGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return imaging.Grayscale(img), nil
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
