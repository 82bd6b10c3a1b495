package model

import (
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"facegate/internal/config"
	"facegate/internal/core/imaging"
	"facegate/internal/core/training"
	"facegate/internal/core/vision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecognizer persists a marker file instead of real classifier state.
type fakeRecognizer struct {
	trained int // samples seen by Train
	loaded  bool
	saveErr error
	closed  bool
}

func (r *fakeRecognizer) Train(samples []*image.Gray, labels []int) error {
	r.trained = len(samples)
	return nil
}

func (r *fakeRecognizer) Predict(face *image.Gray) (vision.Prediction, error) {
	return vision.Prediction{}, vision.ErrModelNotLoaded
}

func (r *fakeRecognizer) SaveFile(path string) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	return os.WriteFile(path, []byte("model"), 0o644)
}

func (r *fakeRecognizer) LoadFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	r.loaded = true
	return nil
}

func (r *fakeRecognizer) Close() error {
	r.closed = true
	return nil
}

type fakeDetector struct {
	boxes []image.Rectangle
}

func (d *fakeDetector) Detect(img *image.Gray, params config.DetectParams) ([]image.Rectangle, error) {
	return d.boxes, nil
}

func writePhoto(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	img := image.NewGray(image.Rect(0, 0, 320, 320))
	for y := 0; y < 320; y++ {
		for x := 0; x < 320; x++ {
			v := uint8(60)
			if (x/4+y/4)%2 == 1 {
				v = 180
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}

	f, err := os.Create(filepath.Join(dir, "photo.jpg"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
}

func newTestManager(t *testing.T, rec *fakeRecognizer) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	facesDir := filepath.Join(dir, "faces")
	det := &fakeDetector{boxes: []image.Rectangle{image.Rect(20, 20, 280, 280)}}
	quality := imaging.NewQualityFilter(
		config.QualityConfig{MinBrightness: 40, MaxBrightness: 200, MinContrast: 15},
		det, config.DetectParams{})
	builder := training.NewBuilder(facesDir, 200, det, config.DetectParams{},
		quality, imaging.NewAugmenter(config.AugmentationConfig{}))

	m := NewManager(
		filepath.Join(dir, "modelo_lbph.yml"),
		filepath.Join(dir, "mapeamento_ids.json"),
		builder,
		func() vision.Recognizer { return rec },
	)
	return m, facesDir
}

func TestEnsureReadyTrainsAndPersists(t *testing.T) {
	rec := &fakeRecognizer{}
	m, facesDir := newTestManager(t, rec)
	writePhoto(t, filepath.Join(facesDir, "tok-a"))

	got, order, err := m.EnsureReady([]string{"tok-a"})
	require.NoError(t, err)
	assert.Same(t, rec, got.(*fakeRecognizer))
	assert.Equal(t, []string{"tok-a"}, order)
	assert.Equal(t, 1, rec.trained)
	assert.True(t, m.Ready())

	// Sidecar wire format.
	data, err := os.ReadFile(m.sidecarPath)
	require.NoError(t, err)
	var sc map[string][]string
	require.NoError(t, json.Unmarshal(data, &sc))
	assert.Equal(t, []string{"tok-a"}, sc["ids_treinamento"])
}

func TestEnsureReadyLoadsPersistedModel(t *testing.T) {
	first := &fakeRecognizer{}
	m, facesDir := newTestManager(t, first)
	writePhoto(t, filepath.Join(facesDir, "tok-a"))

	_, _, err := m.EnsureReady([]string{"tok-a"})
	require.NoError(t, err)

	second := &fakeRecognizer{}
	m2 := NewManager(m.modelPath, m.sidecarPath, m.builder,
		func() vision.Recognizer { return second })

	_, order, err := m2.EnsureReady([]string{"tok-a"})
	require.NoError(t, err)
	assert.True(t, second.loaded)
	assert.Zero(t, second.trained)
	assert.Equal(t, []string{"tok-a"}, order)
}

func TestEnsureReadyNoData(t *testing.T) {
	m, _ := newTestManager(t, &fakeRecognizer{})

	_, _, err := m.EnsureReady([]string{"tok-ghost"})
	assert.ErrorIs(t, err, training.ErrNoTrainableData)
}

func TestInvalidateIsIdempotent(t *testing.T) {
	rec := &fakeRecognizer{}
	m, facesDir := newTestManager(t, rec)
	writePhoto(t, filepath.Join(facesDir, "tok-a"))

	_, _, err := m.EnsureReady([]string{"tok-a"})
	require.NoError(t, err)
	require.True(t, m.Ready())

	require.NoError(t, m.Invalidate())
	assert.False(t, m.Ready())

	require.NoError(t, m.Invalidate())
}

func TestReadyRequiresBothArtifacts(t *testing.T) {
	rec := &fakeRecognizer{}
	m, facesDir := newTestManager(t, rec)
	writePhoto(t, filepath.Join(facesDir, "tok-a"))

	_, _, err := m.EnsureReady([]string{"tok-a"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(m.sidecarPath))
	assert.False(t, m.Ready())
}
