package opencv

import (
	"fmt"
	"image"
	"image/color"

	"facegate/internal/core/corpus"
	"facegate/internal/core/engine"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var (
	colorUnknown    = color.RGBA{R: 128, G: 128, B: 128, A: 0}
	colorDenied     = color.RGBA{R: 255, A: 0}
	colorValidating = color.RGBA{R: 255, G: 255, A: 0}
	colorCountdown  = color.RGBA{G: 255, B: 255, A: 0}
	colorGranted    = color.RGBA{G: 255, A: 0}
)

// Window renders frames with overlays and reads keyboard input. It backs
// both the kiosk display and the capture session UI.
type Window struct {
	win *gocv.Window
}

// NewWindow opens a named display window.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// ShowKiosk renders one live recognition frame with per-box feedback.
// Reports whether the operator asked to quit.
func (w *Window) ShowKiosk(frame image.Image, boxes []engine.BoxFeedback) (bool, error) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return false, fmt.Errorf("failed to convert frame for display: %w", err)
	}
	defer mat.Close()

	for _, fb := range boxes {
		c, label := boxOverlay(fb)
		gocv.Rectangle(&mat, fb.Rect, c, 2)
		gocv.PutText(&mat, label, image.Pt(fb.Rect.Min.X, fb.Rect.Min.Y-10),
			gocv.FontHersheySimplex, 0.6, c, 2)
	}

	w.win.IMShow(mat)
	key := w.win.WaitKey(1)
	return key == 'q' || key == 27, nil
}

// boxOverlay picks the rectangle color and caption for one face box.
func boxOverlay(fb engine.BoxFeedback) (color.RGBA, string) {
	switch fb.Status {
	case engine.BoxDenied:
		return colorDenied, fmt.Sprintf("%s - Nao Autorizado", fb.Name)
	case engine.BoxValidating:
		return colorValidating, fmt.Sprintf("Validando %s (%d/%d)", fb.Name, fb.Attempts, fb.Required)
	case engine.BoxCountdown:
		return colorCountdown, fmt.Sprintf("%s - %s (%.1fs)", fb.Name, fb.Tier, fb.Remaining)
	case engine.BoxGranted:
		return colorGranted, fmt.Sprintf("%s - Acesso Liberado", fb.Name)
	default:
		return colorUnknown, "Desconhecido"
	}
}

// Render shows one capture-session frame with the progress caption.
func (w *Window) Render(frame image.Image, fb corpus.Feedback) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		log.Warnf("Failed to convert capture frame for display: %v", err)
		return
	}
	defer mat.Close()

	caption := fmt.Sprintf("Fotos: %d/%d  [s] capturar  [q] sair", fb.Taken, fb.Max)
	gocv.PutText(&mat, caption, image.Pt(10, 30), gocv.FontHersheySimplex, 0.7, colorCountdown, 2)
	switch {
	case fb.Accepted:
		gocv.PutText(&mat, "FOTO CAPTURADA!", image.Pt(10, 60),
			gocv.FontHersheySimplex, 0.7, colorGranted, 2)
	case fb.Rejected == corpus.RejectNoFace:
		gocv.PutText(&mat, "ROSTO NAO DETECTADO!", image.Pt(10, 60),
			gocv.FontHersheySimplex, 0.7, colorDenied, 2)
	case fb.Rejected != corpus.RejectNone:
		gocv.PutText(&mat, "QUALIDADE INSUFICIENTE!", image.Pt(10, 60),
			gocv.FontHersheySimplex, 0.7, colorDenied, 2)
	}

	w.win.IMShow(mat)
}

// Poll reads the capture-session keyboard command.
func (w *Window) Poll() corpus.Command {
	switch w.win.WaitKey(30) {
	case 's', 'S':
		return corpus.CommandCapture
	case 'q', 'Q', 27:
		return corpus.CommandCancel
	}
	return corpus.CommandNone
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
