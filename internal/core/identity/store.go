// Package identity owns the two persisted enrollment tables: the identity
// table (national ID -> name + identity token) and the tier membership table
// (access tier -> national IDs). It also implements the access policy lookup.
//
// The JSON shapes and file names are wire format shared with existing
// installations: userData.json maps the national ID to {"nome", "id"},
// validation.json maps "Nivel N" to {"pessoas": [...]}.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
)

// The fixed set of access tiers, ordered from least to most privileged.
// A higher tier sees every lower tier's documents.
var Tiers = []string{"Nivel 1", "Nivel 2", "Nivel 3"}

// UnknownTier is the sentinel returned for national IDs in no tier.
const UnknownTier = "Nivel Desconhecido"

// Sentinel errors for the store operations.
var (
	ErrDuplicateIdentity = errors.New("national ID already registered")
	ErrUnknownIdentity   = errors.New("national ID not registered")
)

// SchemaError reports a persisted table whose JSON did not match the
// expected shape. Callers log it and continue with an empty table; the data
// loss is surfaced, not silent.
type SchemaError struct {
	File string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("malformed table %s: %v", e.File, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Identity is one enrolled person.
type Identity struct {
	DisplayName string `json:"nome"`
	Token       string `json:"id"`
}

// tierMembers is the nested value of the tier table.
type tierMembers struct {
	People []string `json:"pessoas"`
}

// Store holds both tables in memory and persists them as whole-file JSON
// rewrites. It assumes a single operator/process at a time.
type Store struct {
	usersPath string
	tiersPath string

	users map[string]Identity      // national ID -> identity
	tiers map[string]*tierMembers  // tier name -> members
}

// NewStore creates an empty store bound to the given table paths.
func NewStore(usersPath, tiersPath string) *Store {
	return &Store{
		usersPath: usersPath,
		tiersPath: tiersPath,
		users:     make(map[string]Identity),
		tiers:     make(map[string]*tierMembers),
	}
}

// Load reads both tables from disk. A missing file yields an empty table. A
// malformed file yields an empty table and a *SchemaError; the store is
// still usable afterwards.
func Load(usersPath, tiersPath string) (*Store, error) {
	s := NewStore(usersPath, tiersPath)

	var firstErr error
	if err := readJSON(usersPath, &s.users); err != nil {
		s.users = make(map[string]Identity)
		firstErr = &SchemaError{File: usersPath, Err: err}
	}
	if err := readJSON(tiersPath, &s.tiers); err != nil {
		s.tiers = make(map[string]*tierMembers)
		if firstErr == nil {
			firstErr = &SchemaError{File: tiersPath, Err: err}
		}
	}
	// An externally edited table may carry a null tier value; the original
	// installations treat that as an empty membership list, so we do too.
	for tier, m := range s.tiers {
		if m == nil {
			s.tiers[tier] = &tierMembers{}
		}
	}
	return s, firstErr
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Save persists both tables, creating the parent directories if needed.
func (s *Store) Save() error {
	for _, dir := range []string{filepath.Dir(s.usersPath), filepath.Dir(s.tiersPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create table directory %s: %w", dir, err)
		}
	}
	if err := writeJSON(s.usersPath, s.users); err != nil {
		return fmt.Errorf("failed to save identity table: %w", err)
	}
	if err := writeJSON(s.tiersPath, s.tiers); err != nil {
		return fmt.Errorf("failed to save tier table: %w", err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Register inserts a new identity into both tables. The ID is stripped from
// every other tier first, so exclusive tier membership holds by construction
// even if an external edit violated it.
func (s *Store) Register(nationalID, displayName, token, tier string) error {
	if _, exists := s.users[nationalID]; exists {
		return ErrDuplicateIdentity
	}
	s.users[nationalID] = Identity{DisplayName: displayName, Token: token}

	s.removeFromTiers(nationalID)
	m, ok := s.tiers[tier]
	if !ok {
		m = &tierMembers{}
		s.tiers[tier] = m
	}
	m.People = append(m.People, nationalID)
	return nil
}

// Remove deletes an identity from the identity table and from every tier
// membership set. Absence in a tier list is not an error.
func (s *Store) Remove(nationalID string) error {
	if _, exists := s.users[nationalID]; !exists {
		return ErrUnknownIdentity
	}
	delete(s.users, nationalID)
	s.removeFromTiers(nationalID)
	return nil
}

func (s *Store) removeFromTiers(nationalID string) {
	for _, m := range s.tiers {
		kept := m.People[:0]
		for _, id := range m.People {
			if id != nationalID {
				kept = append(kept, id)
			}
		}
		m.People = kept
	}
}

// Get returns the identity for a national ID.
func (s *Store) Get(nationalID string) (Identity, bool) {
	id, ok := s.users[nationalID]
	return id, ok
}

// ByToken resolves an identity token back to its national ID. Tokens present
// in a stale model but absent here are the orphaned-label case the decision
// engine treats as a rejection.
func (s *Store) ByToken(token string) (string, bool) {
	for nationalID, id := range s.users {
		if id.Token == token {
			return nationalID, true
		}
	}
	return "", false
}

// Tokens returns every enrolled identity token ordered by national ID, the
// stable enumeration the training set builder labels against.
func (s *Store) Tokens() []string {
	ids := make([]string, 0, len(s.users))
	for nationalID := range s.users {
		ids = append(ids, nationalID)
	}
	sort.Strings(ids)

	tokens := make([]string, 0, len(ids))
	for _, nationalID := range ids {
		tokens = append(tokens, s.users[nationalID].Token)
	}
	return tokens
}

// NationalIDs returns all registered national IDs, sorted.
func (s *Store) NationalIDs() []string {
	ids := make([]string, 0, len(s.users))
	for nationalID := range s.users {
		ids = append(ids, nationalID)
	}
	sort.Strings(ids)
	return ids
}

// Len reports the number of enrolled identities.
func (s *Store) Len() int { return len(s.users) }

// Status values returned by LookupTier.
const (
	StatusAuthorized   = "Autorizado"
	StatusUnauthorized = "Nao Autorizado"
)

// LookupTier scans the tier membership sets for the national ID and returns
// its tier and authorization status. The scan order follows the fixed tier
// list, though a correctly-operating store holds each ID in one tier only.
func (s *Store) LookupTier(nationalID string) (tier, status string) {
	for _, t := range Tiers {
		m, ok := s.tiers[t]
		if !ok {
			continue
		}
		for _, id := range m.People {
			if id == nationalID {
				return t, StatusAuthorized
			}
		}
	}
	return UnknownTier, StatusUnauthorized
}

// TierMembers returns a copy of one tier's membership list.
func (s *Store) TierMembers(tier string) []string {
	m, ok := s.tiers[tier]
	if !ok {
		return nil
	}
	out := make([]string, len(m.People))
	copy(out, m.People)
	return out
}

// CheckExclusiveMembership reports national IDs that appear in more than one
// tier. It exists for diagnostics; Register keeps the invariant on writes.
func (s *Store) CheckExclusiveMembership() []string {
	seen := make(map[string]int)
	for _, t := range Tiers {
		if m, ok := s.tiers[t]; ok {
			for _, id := range m.People {
				seen[id]++
			}
		}
	}
	var violations []string
	for id, n := range seen {
		if n > 1 {
			violations = append(violations, id)
		}
	}
	if len(violations) > 0 {
		log.Warnf("Tier membership invariant violated for %d national IDs", len(violations))
	}
	sort.Strings(violations)
	return violations
}
