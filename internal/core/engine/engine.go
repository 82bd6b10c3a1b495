// Package engine implements the live recognition decision state machine.
//
// A raw per-frame classifier answer is too noisy to act on: LBPH distances
// jitter with lighting and pose. The engine layers three gates on top of the
// single-frame prediction before anything is granted:
//
//  1. distance must beat the confidence threshold (strict <),
//  2. the same identity must be seen on enough consecutive frames (debounce),
//  3. the debounced identity must then hold for a multi-second timed window.
//
// Only after all three does the engine emit its one-shot grant.
package engine

import (
	"errors"
	"fmt"
	"image"
	"time"

	"facegate/internal/config"
	"facegate/internal/core/identity"
	"facegate/internal/core/imaging"
	"facegate/internal/core/vision"
	"facegate/internal/util/textutil"

	log "github.com/sirupsen/logrus"
)

// ErrSessionOver is returned by Process once the session has granted access
// or been quit. The grant transition is terminal, not resumable.
var ErrSessionOver = errors.New("recognition session is over")

// BoxStatus classifies one detected box for overlay rendering.
type BoxStatus int

const (
	BoxUnknown    BoxStatus = iota // prediction rejected
	BoxDenied                      // recognized but not authorized
	BoxValidating                  // authorized, debounce in progress
	BoxCountdown                   // authorized, grant hold running
	BoxGranted                     // grant emitted on this box
)

// BoxFeedback is the overlay payload for one detected face box.
type BoxFeedback struct {
	Rect      image.Rectangle
	Status    BoxStatus
	Name      string // ASCII-safe display name, empty when unknown
	Tier      string
	Distance  float64
	Attempts  int     // consecutive matches so far
	Required  int     // debounce target
	Remaining float64 // seconds left in the grant hold
}

// Grant is the one-shot access decision.
type Grant struct {
	NationalID  string
	DisplayName string
	Tier        string
	Distance    float64
	At          time.Time
}

// FrameResult is everything one processed frame produced.
type FrameResult struct {
	Boxes []BoxFeedback
	Grant *Grant // non-nil exactly once per session
}

// Engine consumes detector boxes and classifier predictions frame by frame.
// It resolves labels through the label order and the identity store, and
// authorization through the store's tier policy. It knows nothing about how
// the model was built.
type Engine struct {
	cfg        config.RecognitionConfig
	detParams  config.DetectParams
	detector   vision.Detector
	recognizer vision.Recognizer
	store      *identity.Store
	labelOrder []string
	now        func() time.Time

	// State carried across frames.
	lastMatched     string // national ID, empty when none
	consecutive     int
	grantTimerStart time.Time
	timerRunning    bool
	over            bool
}

// New creates a decision engine for one recognition session.
func New(cfg config.RecognitionConfig, detParams config.DetectParams, detector vision.Detector, recognizer vision.Recognizer, store *identity.Store, labelOrder []string) *Engine {
	return &Engine{
		cfg:        cfg,
		detParams:  detParams,
		detector:   detector,
		recognizer: recognizer,
		store:      store,
		labelOrder: labelOrder,
		now:        time.Now,
	}
}

// SetClock overrides the engine's time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// ConsecutiveMatches exposes the debounce counter.
func (e *Engine) ConsecutiveMatches() int { return e.consecutive }

// Quit ends the session without a grant.
func (e *Engine) Quit() { e.over = true }

// reset returns all cross-frame state to its initial value.
func (e *Engine) reset() {
	e.lastMatched = ""
	e.consecutive = 0
	e.timerRunning = false
}

// Process runs the per-frame algorithm on one grayscale frame. The returned
// result carries overlay feedback for every detected box and, when the grant
// fires, the terminal Grant. After a grant or Quit it returns ErrSessionOver.
func (e *Engine) Process(frame *image.Gray) (*FrameResult, error) {
	if e.over {
		return nil, ErrSessionOver
	}

	boxes, err := e.detector.Detect(frame, e.detParams)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	res := &FrameResult{}
	if len(boxes) == 0 {
		e.reset()
		return res, nil
	}

	acted := false // only the first usable box drives the grant decision
	for _, box := range boxes {
		if box.Dx() < e.cfg.MinFaceSize || box.Dy() < e.cfg.MinFaceSize {
			continue
		}

		fb, granted := e.processBox(frame, box, &acted)
		res.Boxes = append(res.Boxes, fb)

		if granted != nil {
			res.Grant = granted
			e.over = true
			return res, nil
		}
	}
	return res, nil
}

func (e *Engine) processBox(frame *image.Gray, box image.Rectangle, acted *bool) (BoxFeedback, *Grant) {
	fb := BoxFeedback{Rect: box, Required: e.cfg.MinConsecutiveMatches}

	crop := imaging.Crop(frame, box)
	pred, err := e.recognizer.Predict(crop)
	if err != nil {
		log.Warnf("Prediction failed: %v", err)
		e.reset()
		fb.Status = BoxUnknown
		return fb, nil
	}
	fb.Distance = pred.Distance

	// Acceptance test: strict distance threshold and a valid label index.
	if pred.Distance >= e.cfg.ConfidenceThreshold || pred.Label < 0 || pred.Label >= len(e.labelOrder) {
		e.reset()
		fb.Status = BoxUnknown
		return fb, nil
	}

	token := e.labelOrder[pred.Label]
	nationalID, ok := e.store.ByToken(token)
	if !ok {
		// Orphaned label: the model predates a roster change. Not an error.
		log.Debugf("Orphaned label %d (token %s), treating as rejection", pred.Label, token)
		e.reset()
		fb.Status = BoxUnknown
		return fb, nil
	}

	ident, _ := e.store.Get(nationalID)
	fb.Name = textutil.RemoveAccents(ident.DisplayName)

	if !*acted {
		*acted = true
		if nationalID == e.lastMatched {
			e.consecutive++
		} else {
			// A different identity must redo the debounce and the hold.
			e.consecutive = 1
			e.lastMatched = nationalID
			e.timerRunning = false
		}
	}
	fb.Attempts = e.consecutive

	tier, status := e.store.LookupTier(nationalID)
	fb.Tier = textutil.RemoveAccents(tier)
	if status != identity.StatusAuthorized {
		e.reset()
		fb.Status = BoxDenied
		return fb, nil
	}

	if e.consecutive < e.cfg.MinConsecutiveMatches {
		fb.Status = BoxValidating
		return fb, nil
	}

	now := e.now()
	if !e.timerRunning {
		e.timerRunning = true
		e.grantTimerStart = now
		log.Infof("Recognized %s, starting access timer...", fb.Name)
	}

	held := now.Sub(e.grantTimerStart).Seconds()
	if held >= e.cfg.GrantDelaySeconds {
		log.Infof("Access granted: %s (%s)", fb.Name, fb.Tier)
		fb.Status = BoxGranted
		return fb, &Grant{
			NationalID:  nationalID,
			DisplayName: ident.DisplayName,
			Tier:        tier,
			Distance:    pred.Distance,
			At:          now,
		}
	}

	fb.Status = BoxCountdown
	fb.Remaining = e.cfg.GrantDelaySeconds - held
	return fb, nil
}
