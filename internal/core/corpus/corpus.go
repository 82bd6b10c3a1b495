// Package corpus manages the per-identity photo directories and the capture
// pipeline that fills them. One subdirectory per identity token; samples are
// normalized grayscale JPEG face crops named to avoid collisions.
package corpus

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"facegate/internal/config"
	"facegate/internal/core/imaging"
	"facegate/internal/core/vision"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Manager owns the photo corpus root directory.
type Manager struct {
	facesDir   string
	sampleSize int
	detector   vision.Detector
	detParams  config.DetectParams
	quality    *imaging.QualityFilter
}

// NewManager creates a corpus manager. The detector and quality filter gate
// every ingested photo; detParams is the capture-tuned detection setting.
func NewManager(facesDir string, sampleSize int, detector vision.Detector, detParams config.DetectParams, quality *imaging.QualityFilter) *Manager {
	return &Manager{
		facesDir:   facesDir,
		sampleSize: sampleSize,
		detector:   detector,
		detParams:  detParams,
		quality:    quality,
	}
}

// Dir returns the photo directory of one identity.
func (m *Manager) Dir(token string) string {
	return filepath.Join(m.facesDir, token)
}

// RejectReason explains why a frame was not turned into a sample.
type RejectReason string

const (
	RejectNone       RejectReason = ""
	RejectNoFace     RejectReason = "no face detected"
	RejectLowQuality RejectReason = "image quality too low"
)

// Ingest runs one frame through the accepted-capture pipeline: detect faces,
// take the largest box, crop, grayscale, resize to the canonical square,
// validate quality, and write the sample under a collision-free filename.
// A rejection is not an error; the reason says what to show the operator.
func (m *Manager) Ingest(token string, frame image.Image) (RejectReason, error) {
	gray := imaging.Grayscale(frame)

	boxes, err := m.detector.Detect(gray, m.detParams)
	if err != nil {
		return RejectNone, fmt.Errorf("face detection failed: %w", err)
	}
	box, ok := vision.LargestBox(boxes)
	if !ok {
		return RejectNoFace, nil
	}

	face := imaging.Resize(imaging.Crop(gray, box), m.sampleSize)
	if !m.quality.Validate(face) {
		return RejectLowQuality, nil
	}

	dir := m.Dir(token)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return RejectNone, fmt.Errorf("failed to create photo directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.jpg", token, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return RejectNone, fmt.Errorf("failed to create sample file: %w", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, face, &jpeg.Options{Quality: 95}); err != nil {
		return RejectNone, fmt.Errorf("failed to encode sample: %w", err)
	}

	log.Debugf("Sample written: %s", path)
	return RejectNone, nil
}

// Sample is one stored photo with its modification time, used for pruning.
type Sample struct {
	Name    string
	ModTime time.Time
}

// ListSamples enumerates the identity's photos ordered by name.
func (m *Manager) ListSamples(token string) ([]Sample, error) {
	entries, err := os.ReadDir(m.Dir(token))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list photo directory: %w", err)
	}

	var samples []Sample
	for _, e := range entries {
		if e.IsDir() || !isImageFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		samples = append(samples, Sample{Name: e.Name(), ModTime: info.ModTime()})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples, nil
}

// PruneToRecent keeps the keepN most recently modified samples and deletes
// the rest. A corpus at or below keepN is left untouched.
func (m *Manager) PruneToRecent(token string, keepN int) (removed int, err error) {
	samples, err := m.ListSamples(token)
	if err != nil {
		return 0, err
	}
	if len(samples) <= keepN {
		return 0, nil
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].ModTime.After(samples[j].ModTime) })
	for _, s := range samples[keepN:] {
		if err := os.Remove(filepath.Join(m.Dir(token), s.Name)); err != nil {
			return removed, fmt.Errorf("failed to remove sample %s: %w", s.Name, err)
		}
		removed++
	}
	log.Infof("Pruned %d samples for identity %s, kept %d", removed, token, keepN)
	return removed, nil
}

// DeleteAll removes the identity's whole photo directory. Idempotent.
func (m *Manager) DeleteAll(token string) error {
	if err := os.RemoveAll(m.Dir(token)); err != nil {
		return fmt.Errorf("failed to remove photo directory: %w", err)
	}
	return nil
}

// RemoveIfEmpty rolls back a photo directory that ended up with no samples,
// as after a cancelled enrollment capture.
func (m *Manager) RemoveIfEmpty(token string) {
	samples, err := m.ListSamples(token)
	if err == nil && len(samples) == 0 {
		if err := os.RemoveAll(m.Dir(token)); err != nil {
			log.Warnf("Failed to roll back empty photo directory for %s: %v", token, err)
		}
	}
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
