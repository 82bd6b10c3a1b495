package corpus

import (
	"fmt"
	"image"

	"facegate/internal/core/vision"

	log "github.com/sirupsen/logrus"
)

// Command is an operator input observed between frames of a capture session.
type Command int

const (
	CommandNone Command = iota
	CommandCapture
	CommandCancel
)

// Feedback tells the capture UI what to render over the current frame.
type Feedback struct {
	Taken    int // photos accepted so far
	Max      int
	Accepted bool         // the last command produced a sample
	Rejected RejectReason // non-empty when the last command was rejected
}

// CaptureUI is the operator-facing side of a capture session: it renders the
// current frame plus feedback and reports the operator's command. The gocv
// window adapter implements it; tests use a scripted fake.
type CaptureUI interface {
	Render(frame image.Image, fb Feedback)
	Poll() Command
}

// CaptureSession drives the interactive photo capture loop for one identity.
// Every capture command runs the frame through the ingest pipeline; rejected
// frames are reported to the operator and do not count toward maxCount. The
// loop ends at maxCount accepted photos or on operator cancel, and returns
// the number of samples written. The frame source is released by the caller,
// which owns it exclusively for the duration of the session.
func (m *Manager) CaptureSession(token string, src vision.FrameSource, ui CaptureUI, maxCount int) (int, error) {
	taken := 0
	fb := Feedback{Max: maxCount}

	for taken < maxCount {
		frame, err := src.Read()
		if err != nil {
			return taken, fmt.Errorf("failed to read camera frame: %w", err)
		}

		fb.Taken = taken
		ui.Render(frame, fb)
		fb.Accepted = false
		fb.Rejected = RejectNone

		switch ui.Poll() {
		case CommandCancel:
			log.Infof("Capture session cancelled after %d photos", taken)
			return taken, nil
		case CommandCapture:
			reason, err := m.Ingest(token, frame)
			if err != nil {
				return taken, err
			}
			if reason == RejectNone {
				taken++
				fb.Accepted = true
			} else {
				fb.Rejected = reason
				log.Debugf("Capture rejected: %s", reason)
			}
		}
	}

	log.Infof("Capture session complete: %d photos for identity %s", taken, token)
	return taken, nil
}
