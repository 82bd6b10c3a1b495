// Package admin implements the administration workflows: enroll, add
// photos, prune photos and delete identity. Each is a single implementation
// orchestrating the identity store, photo corpus and model lifecycle; UI
// layers (the HTTP API, the kiosk) are thin callers.
package admin

import (
	"fmt"
	"regexp"
	"strings"

	"facegate/internal/core/corpus"
	"facegate/internal/core/identity"
	"facegate/internal/core/model"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ValidationError is an expected operator-input rejection, returned before
// any state is mutated. It is not an I/O failure and is never wrapped as one.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var digitsOnly = regexp.MustCompile(`^[0-9]{11}$`)

// NormalizeNationalID strips the usual separators and validates the
// 11-digit format.
func NormalizeNationalID(raw string) (string, *ValidationError) {
	cleaned := strings.NewReplacer(".", "", "-", "", " ", "").Replace(raw)
	if !digitsOnly.MatchString(cleaned) {
		return "", &ValidationError{Field: "cpf", Message: "must be exactly 11 numeric digits"}
	}
	return cleaned, nil
}

// TierName converts an operator-supplied tier number into the stored tier
// label.
func TierName(level int) (string, *ValidationError) {
	if level < 1 || level > 3 {
		return "", &ValidationError{Field: "nivel", Message: "must be 1, 2 or 3"}
	}
	return fmt.Sprintf("Nivel %d", level), nil
}

// PhotoSource produces photos for an identity token and reports how many
// samples were written. The interactive capture session and the HTTP photo
// upload both satisfy it.
type PhotoSource func(token string) (int, error)

// Auditor records administration actions. The event repository implements
// it; a no-op implementation is fine for tests.
type Auditor interface {
	RecordAdmin(action, nationalID string, detail map[string]interface{})
}

// NopAuditor discards audit records.
type NopAuditor struct{}

func (NopAuditor) RecordAdmin(string, string, map[string]interface{}) {}

// Workflows bundles the collaborators every operation needs.
type Workflows struct {
	store     *identity.Store
	corpus    *corpus.Manager
	lifecycle *model.Manager
	audit     Auditor
}

// New creates the workflow orchestrator.
func New(store *identity.Store, corpusMgr *corpus.Manager, lifecycle *model.Manager, audit Auditor) *Workflows {
	if audit == nil {
		audit = NopAuditor{}
	}
	return &Workflows{store: store, corpus: corpusMgr, lifecycle: lifecycle, audit: audit}
}

// EnrollRequest carries the operator input for a new identity.
type EnrollRequest struct {
	DisplayName string
	NationalID  string
	Level       int
}

// Enroll registers a new identity. Validation runs before any mutation; a
// capture that yields zero photos rolls the just-created directory back and
// persists nothing. On success the trained model is invalidated.
func (w *Workflows) Enroll(req EnrollRequest, photos PhotoSource) (string, error) {
	if strings.TrimSpace(req.DisplayName) == "" {
		return "", &ValidationError{Field: "nome", Message: "display name is required"}
	}
	nationalID, verr := NormalizeNationalID(req.NationalID)
	if verr != nil {
		return "", verr
	}
	tier, verr := TierName(req.Level)
	if verr != nil {
		return "", verr
	}
	if _, exists := w.store.Get(nationalID); exists {
		return "", identity.ErrDuplicateIdentity
	}

	token := uuid.NewString()
	taken, err := photos(token)
	if err != nil {
		w.corpus.RemoveIfEmpty(token)
		return "", fmt.Errorf("photo capture failed: %w", err)
	}
	if taken == 0 {
		w.corpus.RemoveIfEmpty(token)
		return "", &ValidationError{Field: "fotos", Message: "no photos captured, enrollment cancelled"}
	}

	if err := w.store.Register(nationalID, req.DisplayName, token, tier); err != nil {
		return "", err
	}
	if err := w.store.Save(); err != nil {
		return "", err
	}
	if err := w.lifecycle.Invalidate(); err != nil {
		log.Warnf("Model invalidation after enrollment failed: %v", err)
	}

	w.audit.RecordAdmin("enroll", nationalID, map[string]interface{}{
		"nome": req.DisplayName, "nivel": tier, "fotos": taken,
	})
	log.Infof("Enrolled %s (%s) with %d photos", req.DisplayName, tier, taken)
	return token, nil
}

// AddPhotos captures additional photos for an existing identity and
// invalidates the model when at least one was added.
func (w *Workflows) AddPhotos(rawNationalID string, photos PhotoSource) (int, error) {
	nationalID, verr := NormalizeNationalID(rawNationalID)
	if verr != nil {
		return 0, verr
	}
	ident, ok := w.store.Get(nationalID)
	if !ok {
		return 0, identity.ErrUnknownIdentity
	}

	taken, err := photos(ident.Token)
	if err != nil {
		return taken, fmt.Errorf("photo capture failed: %w", err)
	}
	if taken > 0 {
		if err := w.lifecycle.Invalidate(); err != nil {
			log.Warnf("Model invalidation after adding photos failed: %v", err)
		}
		w.audit.RecordAdmin("add_photos", nationalID, map[string]interface{}{"fotos": taken})
	}
	return taken, nil
}

// PrunePhotos keeps only the keepN most recent photos of an identity and
// invalidates the model when anything was removed.
func (w *Workflows) PrunePhotos(rawNationalID string, keepN int) (int, error) {
	nationalID, verr := NormalizeNationalID(rawNationalID)
	if verr != nil {
		return 0, verr
	}
	if keepN < 1 {
		return 0, &ValidationError{Field: "manter", Message: "must keep at least one photo"}
	}
	ident, ok := w.store.Get(nationalID)
	if !ok {
		return 0, identity.ErrUnknownIdentity
	}

	removed, err := w.corpus.PruneToRecent(ident.Token, keepN)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		if err := w.lifecycle.Invalidate(); err != nil {
			log.Warnf("Model invalidation after pruning failed: %v", err)
		}
		w.audit.RecordAdmin("prune_photos", nationalID, map[string]interface{}{
			"removidas": removed, "mantidas": keepN,
		})
	}
	return removed, nil
}

// Delete removes an identity: its photo directory, its tier memberships and
// its identity-table entry, then persists both tables and invalidates the
// model. Every destructive step is attempted even when an earlier one
// fails; the first error encountered is surfaced after the cleanup runs to
// completion.
func (w *Workflows) Delete(rawNationalID string) error {
	nationalID, verr := NormalizeNationalID(rawNationalID)
	if verr != nil {
		return verr
	}
	ident, ok := w.store.Get(nationalID)
	if !ok {
		return identity.ErrUnknownIdentity
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(w.corpus.DeleteAll(ident.Token))
	record(w.store.Remove(nationalID))
	record(w.store.Save())
	record(w.lifecycle.Invalidate())

	w.audit.RecordAdmin("delete", nationalID, map[string]interface{}{"nome": ident.DisplayName})
	if firstErr != nil {
		return fmt.Errorf("identity deleted with errors: %w", firstErr)
	}
	log.Infof("Deleted identity %s (%s)", ident.DisplayName, nationalID)
	return nil
}
