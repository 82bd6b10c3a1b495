package corpus

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"facegate/internal/config"
	"facegate/internal/core/imaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDetector reports a fixed set of boxes.
type fakeDetector struct {
	boxes []image.Rectangle
}

func (d *fakeDetector) Detect(img *image.Gray, params config.DetectParams) ([]image.Rectangle, error) {
	return d.boxes, nil
}

// testFrame builds a frame with enough brightness and contrast to pass the
// quality filter.
func testFrame(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(60)
			if (x+y)%2 == 1 {
				v = 180
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func newTestManager(t *testing.T, det *fakeDetector) *Manager {
	t.Helper()
	quality := imaging.NewQualityFilter(
		config.QualityConfig{MinBrightness: 40, MaxBrightness: 200, MinContrast: 15},
		det, config.DetectParams{})
	return NewManager(t.TempDir(), 200, det, config.DetectParams{}, quality)
}

func TestIngestAcceptsGoodFrame(t *testing.T) {
	det := &fakeDetector{boxes: []image.Rectangle{image.Rect(100, 100, 300, 300)}}
	m := newTestManager(t, det)

	reason, err := m.Ingest("tok-1", testFrame(640, 480))
	require.NoError(t, err)
	assert.Equal(t, RejectNone, reason)

	samples, err := m.ListSamples("tok-1")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, strings.HasPrefix(samples[0].Name, "tok-1_"))
	assert.True(t, strings.HasSuffix(samples[0].Name, ".jpg"))
}

func TestIngestRejectsFrameWithoutFace(t *testing.T) {
	m := newTestManager(t, &fakeDetector{})

	reason, err := m.Ingest("tok-1", testFrame(640, 480))
	require.NoError(t, err)
	assert.Equal(t, RejectNoFace, reason)

	samples, err := m.ListSamples("tok-1")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestIngestRejectsLowQualityFrame(t *testing.T) {
	det := &fakeDetector{boxes: []image.Rectangle{image.Rect(0, 0, 200, 200)}}
	m := newTestManager(t, det)

	// Uniform frame: brightness fine, contrast zero.
	flat := image.NewGray(image.Rect(0, 0, 640, 480))
	for i := range flat.Pix {
		flat.Pix[i] = 120
	}

	reason, err := m.Ingest("tok-1", flat)
	require.NoError(t, err)
	assert.Equal(t, RejectLowQuality, reason)
}

func TestPruneToRecentKeepsNewest(t *testing.T) {
	det := &fakeDetector{boxes: []image.Rectangle{image.Rect(0, 0, 200, 200)}}
	m := newTestManager(t, det)

	for i := 0; i < 5; i++ {
		reason, err := m.Ingest("tok-1", testFrame(640, 480))
		require.NoError(t, err)
		require.Equal(t, RejectNone, reason)
	}

	// Spread modification times so recency is unambiguous.
	samples, err := m.ListSamples("tok-1")
	require.NoError(t, err)
	require.Len(t, samples, 5)
	base := time.Now().Add(-time.Hour)
	for i, s := range samples {
		mt := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(filepath.Join(m.Dir("tok-1"), s.Name), mt, mt))
	}
	newest := map[string]bool{samples[3].Name: true, samples[4].Name: true}

	removed, err := m.PruneToRecent("tok-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	remaining, err := m.ListSamples("tok-1")
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	for _, s := range remaining {
		assert.True(t, newest[s.Name], "kept %s, expected one of the newest", s.Name)
	}
}

func TestPruneToRecentNoopBelowThreshold(t *testing.T) {
	det := &fakeDetector{boxes: []image.Rectangle{image.Rect(0, 0, 200, 200)}}
	m := newTestManager(t, det)

	reason, err := m.Ingest("tok-1", testFrame(640, 480))
	require.NoError(t, err)
	require.Equal(t, RejectNone, reason)

	removed, err := m.PruneToRecent("tok-1", 10)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDeleteAllIsIdempotent(t *testing.T) {
	det := &fakeDetector{boxes: []image.Rectangle{image.Rect(0, 0, 200, 200)}}
	m := newTestManager(t, det)

	reason, err := m.Ingest("tok-1", testFrame(640, 480))
	require.NoError(t, err)
	require.Equal(t, RejectNone, reason)

	require.NoError(t, m.DeleteAll("tok-1"))
	_, err = os.Stat(m.Dir("tok-1"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, m.DeleteAll("tok-1"))
}

// scriptedUI plays back a fixed command sequence.
type scriptedUI struct {
	commands []Command
	pos      int
	rendered int
}

func (u *scriptedUI) Render(frame image.Image, fb Feedback) { u.rendered++ }

func (u *scriptedUI) Poll() Command {
	if u.pos >= len(u.commands) {
		return CommandCancel
	}
	c := u.commands[u.pos]
	u.pos++
	return c
}

// stillSource returns the same frame forever.
type stillSource struct{ frame *image.Gray }

func (s *stillSource) Read() (image.Image, error) { return s.frame, nil }
func (s *stillSource) Close() error               { return nil }

func TestCaptureSessionStopsAtMax(t *testing.T) {
	det := &fakeDetector{boxes: []image.Rectangle{image.Rect(0, 0, 200, 200)}}
	m := newTestManager(t, det)

	ui := &scriptedUI{commands: []Command{
		CommandCapture, CommandNone, CommandCapture, CommandCapture, CommandCapture,
	}}
	taken, err := m.CaptureSession("tok-1", &stillSource{frame: testFrame(640, 480)}, ui, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, taken)

	samples, err := m.ListSamples("tok-1")
	require.NoError(t, err)
	assert.Len(t, samples, 3)
}

func TestCaptureSessionCancelReturnsTaken(t *testing.T) {
	det := &fakeDetector{boxes: []image.Rectangle{image.Rect(0, 0, 200, 200)}}
	m := newTestManager(t, det)

	ui := &scriptedUI{commands: []Command{CommandCapture, CommandCancel}}
	taken, err := m.CaptureSession("tok-1", &stillSource{frame: testFrame(640, 480)}, ui, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, taken)
}

func TestCaptureSessionRejectedFramesDoNotCount(t *testing.T) {
	// No detectable face anywhere: every capture command is rejected.
	m := newTestManager(t, &fakeDetector{})

	ui := &scriptedUI{commands: []Command{CommandCapture, CommandCapture, CommandCancel}}
	taken, err := m.CaptureSession("tok-1", &stillSource{frame: testFrame(640, 480)}, ui, 10)
	require.NoError(t, err)
	assert.Zero(t, taken)
}
