// Package model owns the trained classifier's lifecycle: building it from a
// training set, persisting it together with its label-order sidecar, loading
// a persisted model, and invalidating stale artifacts when enrollment data
// changes.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"facegate/internal/core/training"
	"facegate/internal/core/vision"

	log "github.com/sirupsen/logrus"
)

// sidecar is the persisted label-order mapping. The classifier blob alone is
// meaningless without it: integer labels carry no identity of their own.
type sidecar struct {
	IDs []string `json:"ids_treinamento"`
}

// Manager ties the persisted model files to a recognizer factory. The
// factory yields a fresh, untrained classifier instance; the manager decides
// whether to load or train it.
type Manager struct {
	modelPath   string
	sidecarPath string
	builder     *training.Builder
	factory     func() vision.Recognizer
}

// NewManager creates a lifecycle manager.
func NewManager(modelPath, sidecarPath string, builder *training.Builder, factory func() vision.Recognizer) *Manager {
	return &Manager{
		modelPath:   modelPath,
		sidecarPath: sidecarPath,
		builder:     builder,
		factory:     factory,
	}
}

// Ready reports whether both persisted artifacts exist. They are one unit:
// either is useless without the other.
func (m *Manager) Ready() bool {
	return fileExists(m.modelPath) && fileExists(m.sidecarPath)
}

// EnsureReady returns a usable recognizer and its label order, loading the
// persisted model when present and training a fresh one otherwise. Training
// runs to completion and blocks the caller; recognition must not start
// without it. Returns training.ErrNoTrainableData when there is nothing to
// train. The caller owns the returned recognizer and must Close it.
func (m *Manager) EnsureReady(tokens []string) (vision.Recognizer, []string, error) {
	if m.Ready() {
		rec := m.factory()
		if err := rec.LoadFile(m.modelPath); err != nil {
			rec.Close()
			return nil, nil, fmt.Errorf("failed to load persisted model: %w", err)
		}
		order, err := loadSidecar(m.sidecarPath)
		if err != nil {
			rec.Close()
			return nil, nil, fmt.Errorf("failed to load label-order sidecar: %w", err)
		}
		log.Infof("Loaded persisted recognition model (%d identities)", len(order))
		return rec, order, nil
	}

	log.Info("No persisted model found, training a new one...")
	set, err := m.builder.Build(tokens)
	if err != nil {
		if errors.Is(err, training.ErrNoTrainableData) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("training set build failed: %w", err)
	}

	rec := m.factory()
	if err := rec.Train(set.Samples, set.Labels); err != nil {
		rec.Close()
		return nil, nil, fmt.Errorf("classifier training failed: %w", err)
	}

	if err := m.persist(rec, set.LabelOrder); err != nil {
		rec.Close()
		return nil, nil, err
	}
	log.Infof("Model trained on %d samples and persisted", len(set.Samples))
	return rec, set.LabelOrder, nil
}

// persist writes the classifier state and label-order sidecar as one unit.
func (m *Manager) persist(rec vision.Recognizer, order []string) error {
	if err := os.MkdirAll(filepath.Dir(m.modelPath), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	if err := rec.SaveFile(m.modelPath); err != nil {
		return fmt.Errorf("failed to save classifier state: %w", err)
	}
	data, err := json.MarshalIndent(sidecar{IDs: order}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode label order: %w", err)
	}
	if err := os.WriteFile(m.sidecarPath, data, 0o644); err != nil {
		// Half-written unit: drop the model file too rather than leave a
		// blob without its label order.
		os.Remove(m.modelPath)
		return fmt.Errorf("failed to save label-order sidecar: %w", err)
	}
	return nil
}

// Invalidate deletes both persisted artifacts. Idempotent; called by every
// administration workflow that changes enrollment data.
func (m *Manager) Invalidate() error {
	var firstErr error
	for _, path := range []string{m.modelPath, m.sidecarPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
	}
	if firstErr == nil {
		log.Info("Recognition model invalidated, will retrain on next session")
	}
	return firstErr
}

func loadSidecar(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if len(sc.IDs) == 0 {
		return nil, errors.New("sidecar holds no label order")
	}
	return sc.IDs, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
