package conf

import (
	"maps"
	"strings"
	"sync"
	"time"
)

// Store is the runtime settings store: simple get/set of the values the live
// pipeline reads, persisted on demand with SaveYAMLConfig.
type Store struct {
	mu       sync.RWMutex
	settings Settings
	path     string
}

// NewStore wraps a copy of settings. path is where Save writes; empty disables saving.
func NewStore(settings *Settings, path string) *Store {
	s := &Store{settings: *settings, path: path}
	s.settings.Highlight.Rules = maps.Clone(settings.Highlight.Rules)
	return s
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.settings
	out.Highlight.Rules = maps.Clone(s.settings.Highlight.Rules)
	return out
}

// SelectedModel returns the configured model type.
func (s *Store) SelectedModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Model.Type
}

// SetSelectedModel records the active model type.
func (s *Store) SetSelectedModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Model.Type = model
}

// HighlightRules returns a copy of the highlight rule map.
func (s *Store) HighlightRules() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.settings.Highlight.Rules)
}

// SetHighlightRules replaces the highlight rules, lowercasing labels.
func (s *Store) SetHighlightRules(rules map[string]float64) {
	normalized := make(map[string]float64, len(rules))
	for label, threshold := range rules {
		normalized[strings.ToLower(strings.TrimSpace(label))] = threshold
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Highlight.Rules = normalized
}

// AssistedCapture reports whether manual capture is gated on highlighting.
func (s *Store) AssistedCapture() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Highlight.AssistedCapture
}

// SetAssistedCapture toggles assisted capture.
func (s *Store) SetAssistedCapture(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Highlight.AssistedCapture = enabled
}

// FaceBlur reports whether captured photos are face blurred.
func (s *Store) FaceBlur() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Privacy.FaceBlur
}

// SetFaceBlur toggles face blurring.
func (s *Store) SetFaceBlur(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Privacy.FaceBlur = enabled
}

// BestShot returns the best shot settings.
func (s *Store) BestShot() BestShotSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.BestShot
}

// SetBestShot updates the user facing best shot parameters.
func (s *Store) SetBestShot(duration time.Duration, targetLabel string, threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.BestShot.Duration = duration
	s.settings.BestShot.TargetLabel = targetLabel
	s.settings.BestShot.Threshold = threshold
}

// Save persists the current settings.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	snapshot := s.Snapshot()
	return SaveYAMLConfig(s.path, &snapshot)
}
