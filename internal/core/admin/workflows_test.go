package admin

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"facegate/internal/config"
	"facegate/internal/core/corpus"
	"facegate/internal/core/identity"
	"facegate/internal/core/imaging"
	"facegate/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	boxes []image.Rectangle
}

func (d *fakeDetector) Detect(img *image.Gray, params config.DetectParams) ([]image.Rectangle, error) {
	return d.boxes, nil
}

// recordingAuditor captures recorded actions for assertions.
type recordingAuditor struct {
	actions []string
}

func (a *recordingAuditor) RecordAdmin(action, nationalID string, detail map[string]interface{}) {
	a.actions = append(a.actions, action)
}

type workflowEnv struct {
	workflows *Workflows
	store     *identity.Store
	corpus    *corpus.Manager
	model     *model.Manager
	audit     *recordingAuditor
	facesDir  string
	modelPath string
}

func newWorkflowEnv(t *testing.T) *workflowEnv {
	t.Helper()
	dir := t.TempDir()
	facesDir := filepath.Join(dir, "faces")

	store := identity.NewStore(filepath.Join(dir, "userData.json"), filepath.Join(dir, "validation.json"))

	det := &fakeDetector{boxes: []image.Rectangle{image.Rect(0, 0, 200, 200)}}
	quality := imaging.NewQualityFilter(
		config.QualityConfig{MinBrightness: 40, MaxBrightness: 200, MinContrast: 15},
		det, config.DetectParams{})
	corpusMgr := corpus.NewManager(facesDir, 200, det, config.DetectParams{}, quality)

	modelPath := filepath.Join(dir, "modelo_lbph.yml")
	sidecarPath := filepath.Join(dir, "mapeamento_ids.json")
	modelMgr := model.NewManager(modelPath, sidecarPath, nil, nil)

	audit := &recordingAuditor{}
	return &workflowEnv{
		workflows: New(store, corpusMgr, modelMgr, audit),
		store:     store,
		corpus:    corpusMgr,
		model:     modelMgr,
		audit:     audit,
		facesDir:  facesDir,
		modelPath: modelPath,
	}
}

// photoWriter is a photo source that drops n fake samples into the
// identity's directory.
func (env *workflowEnv) photoWriter(n int) PhotoSource {
	return func(token string) (int, error) {
		dir := filepath.Join(env.facesDir, token)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
		for i := 0; i < n; i++ {
			name := filepath.Join(dir, token+"_"+string(rune('a'+i))+".jpg")
			if err := os.WriteFile(name, []byte("jpeg"), 0o644); err != nil {
				return i, err
			}
		}
		return n, nil
	}
}

// writeModelArtifacts plants persisted model files so invalidation is
// observable.
func (env *workflowEnv) writeModelArtifacts(t *testing.T) {
	t.Helper()
	require.NoError(t, os.WriteFile(env.modelPath, []byte("model"), 0o644))
	sidecar := filepath.Join(filepath.Dir(env.modelPath), "mapeamento_ids.json")
	require.NoError(t, os.WriteFile(sidecar, []byte(`{"ids_treinamento":["tok"]}`), 0o644))
}

func TestNormalizeNationalID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare digits", "12345678901", "12345678901", false},
		{"formatted", "123.456.789-01", "12345678901", false},
		{"spaces", " 123.456.789-01 ", "12345678901", false},
		{"too short", "1234567890", "", true},
		{"too long", "123456789012", "", true},
		{"letters", "1234567890a", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeNationalID(tt.in)
			if tt.wantErr {
				require.NotNil(t, err)
				assert.Equal(t, "cpf", err.Field)
			} else {
				require.Nil(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestTierName(t *testing.T) {
	for level, want := range map[int]string{1: "Nivel 1", 2: "Nivel 2", 3: "Nivel 3"} {
		got, err := TierName(level)
		require.Nil(t, err)
		assert.Equal(t, want, got)
	}
	for _, level := range []int{0, 4, -1} {
		_, err := TierName(level)
		require.NotNil(t, err)
		assert.Equal(t, "nivel", err.Field)
	}
}

func TestEnroll(t *testing.T) {
	env := newWorkflowEnv(t)
	env.writeModelArtifacts(t)

	token, err := env.workflows.Enroll(EnrollRequest{
		DisplayName: "Maria Silva",
		NationalID:  "123.456.789-01",
		Level:       2,
	}, env.photoWriter(3))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ident, ok := env.store.Get("12345678901")
	require.True(t, ok)
	assert.Equal(t, "Maria Silva", ident.DisplayName)
	assert.Equal(t, token, ident.Token)

	tier, status := env.store.LookupTier("12345678901")
	assert.Equal(t, "Nivel 2", tier)
	assert.Equal(t, identity.StatusAuthorized, status)

	// Tables persisted and model invalidated.
	assert.FileExists(t, filepath.Join(filepath.Dir(env.modelPath), "userData.json"))
	assert.NoFileExists(t, env.modelPath)
	assert.Equal(t, []string{"enroll"}, env.audit.actions)
}

// stillSource is a frame source that always yields the same frame.
type stillSource struct {
	frame image.Image
}

func (s *stillSource) Read() (image.Image, error) { return s.frame, nil }

func (s *stillSource) Close() error { return nil }

// scriptedUI plays back a fixed command sequence, cancelling once exhausted.
type scriptedUI struct {
	commands []corpus.Command
	next     int
}

func (u *scriptedUI) Render(image.Image, corpus.Feedback) {}

func (u *scriptedUI) Poll() corpus.Command {
	if u.next >= len(u.commands) {
		return corpus.CommandCancel
	}
	c := u.commands[u.next]
	u.next++
	return c
}

func TestEnrollFromCaptureSession(t *testing.T) {
	env := newWorkflowEnv(t)

	frame := image.NewGray(image.Rect(0, 0, 320, 320))
	for y := 0; y < 320; y++ {
		for x := 0; x < 320; x++ {
			v := uint8(60)
			if (x+y)%2 == 0 {
				v = 180
			}
			frame.SetGray(x, y, color.Gray{Y: v})
		}
	}

	// Two captures then cancel, the same flow the interactive window drives.
	ui := &scriptedUI{commands: []corpus.Command{
		corpus.CommandCapture, corpus.CommandNone, corpus.CommandCapture, corpus.CommandCancel,
	}}
	source := func(token string) (int, error) {
		return env.corpus.CaptureSession(token, &stillSource{frame: frame}, ui, 10)
	}

	token, err := env.workflows.Enroll(EnrollRequest{
		DisplayName: "Maria Silva",
		NationalID:  "12345678901",
		Level:       1,
	}, source)
	require.NoError(t, err)

	samples, err := env.corpus.ListSamples(token)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
	_, ok := env.store.Get("12345678901")
	assert.True(t, ok)
}

func TestEnrollValidation(t *testing.T) {
	env := newWorkflowEnv(t)

	tests := []struct {
		name string
		req  EnrollRequest
	}{
		{"empty name", EnrollRequest{DisplayName: "  ", NationalID: "12345678901", Level: 1}},
		{"bad cpf", EnrollRequest{DisplayName: "Maria", NationalID: "123", Level: 1}},
		{"bad level", EnrollRequest{DisplayName: "Maria", NationalID: "12345678901", Level: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.workflows.Enroll(tt.req, env.photoWriter(1))
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
	assert.Zero(t, env.store.Len())
}

func TestEnrollDuplicate(t *testing.T) {
	env := newWorkflowEnv(t)

	_, err := env.workflows.Enroll(EnrollRequest{DisplayName: "Maria", NationalID: "12345678901", Level: 1},
		env.photoWriter(1))
	require.NoError(t, err)

	_, err = env.workflows.Enroll(EnrollRequest{DisplayName: "Clone", NationalID: "123.456.789-01", Level: 2},
		env.photoWriter(1))
	assert.ErrorIs(t, err, identity.ErrDuplicateIdentity)
}

func TestEnrollZeroPhotosRollsBack(t *testing.T) {
	env := newWorkflowEnv(t)

	_, err := env.workflows.Enroll(EnrollRequest{DisplayName: "Maria", NationalID: "12345678901", Level: 1},
		env.photoWriter(0))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "fotos", verr.Field)

	assert.Zero(t, env.store.Len())
	entries, readErr := os.ReadDir(env.facesDir)
	if readErr == nil {
		assert.Empty(t, entries)
	}
	assert.Empty(t, env.audit.actions)
}

func TestEnrollPhotoSourceFailure(t *testing.T) {
	env := newWorkflowEnv(t)

	boom := errors.New("camera exploded")
	_, err := env.workflows.Enroll(EnrollRequest{DisplayName: "Maria", NationalID: "12345678901", Level: 1},
		func(string) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, env.store.Len())
}

func TestAddPhotos(t *testing.T) {
	env := newWorkflowEnv(t)

	_, err := env.workflows.Enroll(EnrollRequest{DisplayName: "Maria", NationalID: "12345678901", Level: 1},
		env.photoWriter(2))
	require.NoError(t, err)
	env.writeModelArtifacts(t)

	taken, err := env.workflows.AddPhotos("123.456.789-01", env.photoWriter(3))
	require.NoError(t, err)
	assert.Equal(t, 3, taken)
	assert.NoFileExists(t, env.modelPath)
	assert.Equal(t, []string{"enroll", "add_photos"}, env.audit.actions)
}

func TestAddPhotosUnknownIdentity(t *testing.T) {
	env := newWorkflowEnv(t)

	_, err := env.workflows.AddPhotos("12345678901", env.photoWriter(1))
	assert.ErrorIs(t, err, identity.ErrUnknownIdentity)
}

func TestPrunePhotos(t *testing.T) {
	env := newWorkflowEnv(t)

	_, err := env.workflows.Enroll(EnrollRequest{DisplayName: "Maria", NationalID: "12345678901", Level: 1},
		env.photoWriter(5))
	require.NoError(t, err)
	env.writeModelArtifacts(t)

	removed, err := env.workflows.PrunePhotos("12345678901", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.NoFileExists(t, env.modelPath)

	ident, _ := env.store.Get("12345678901")
	samples, err := env.corpus.ListSamples(ident.Token)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestPrunePhotosValidation(t *testing.T) {
	env := newWorkflowEnv(t)

	_, err := env.workflows.PrunePhotos("12345678901", 0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "manter", verr.Field)
}

func TestDelete(t *testing.T) {
	env := newWorkflowEnv(t)

	_, err := env.workflows.Enroll(EnrollRequest{DisplayName: "Maria", NationalID: "12345678901", Level: 2},
		env.photoWriter(2))
	require.NoError(t, err)
	env.writeModelArtifacts(t)
	ident, _ := env.store.Get("12345678901")

	require.NoError(t, env.workflows.Delete("123.456.789-01"))

	_, ok := env.store.Get("12345678901")
	assert.False(t, ok)
	assert.Empty(t, env.store.TierMembers("Nivel 2"))
	_, statErr := os.Stat(filepath.Join(env.facesDir, ident.Token))
	assert.True(t, os.IsNotExist(statErr))
	assert.NoFileExists(t, env.modelPath)
	assert.Equal(t, []string{"enroll", "delete"}, env.audit.actions)
}

func TestDeleteUnknownIdentity(t *testing.T) {
	env := newWorkflowEnv(t)

	assert.ErrorIs(t, env.workflows.Delete("12345678901"), identity.ErrUnknownIdentity)
}
