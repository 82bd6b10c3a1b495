package imaging

import (
	"image"

	"facegate/internal/config"
	"facegate/internal/core/vision"

	log "github.com/sirupsen/logrus"
)

// QualityFilter decides whether a face crop is usable as a training sample.
// It rejects under- and over-exposed crops, flat low-contrast crops, and
// crops in which the detector can no longer find a face (a sanity re-check
// on the already-cropped region).
type QualityFilter struct {
	cfg      config.QualityConfig
	detector vision.Detector
	params   config.DetectParams
}

// NewQualityFilter builds a filter around the given detector. The detector
// re-check uses its own, looser tuning than training detection.
func NewQualityFilter(cfg config.QualityConfig, detector vision.Detector, params config.DetectParams) *QualityFilter {
	return &QualityFilter{cfg: cfg, detector: detector, params: params}
}

// Validate reports whether the grayscale face crop passes all three checks.
func (q *QualityFilter) Validate(img *image.Gray) bool {
	mean, stddev := MeanStdDev(img)
	if mean < q.cfg.MinBrightness || mean > q.cfg.MaxBrightness {
		log.Debugf("Quality filter: brightness %.1f outside [%.0f, %.0f]", mean, q.cfg.MinBrightness, q.cfg.MaxBrightness)
		return false
	}
	if stddev < q.cfg.MinContrast {
		log.Debugf("Quality filter: contrast %.1f below %.0f", stddev, q.cfg.MinContrast)
		return false
	}

	boxes, err := q.detector.Detect(img, q.params)
	if err != nil {
		log.Warnf("Quality filter: detector re-check failed: %v", err)
		return false
	}
	if len(boxes) == 0 {
		log.Debug("Quality filter: no face found in cropped region")
		return false
	}
	return true
}
