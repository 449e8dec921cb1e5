package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/station-console/station/internal/storage"
)

// Slot names. The edit key slot predates the KeySet record and is kept as
// a read fallback and a mirror.
const (
	SlotKeys       = "station.keys.v1"
	SlotBackendURL = "STATION_BACKEND_URL"
	SlotEditKey    = "STATION_EDIT_KEY"
)

// Store loads and saves KeySets through slot storage.
type Store struct {
	slots storage.Slots
	log   logrus.FieldLogger
}

func NewStore(slots storage.Slots, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{slots: slots, log: log.WithField("component", "keys")}
}

// Load merges the persisted record over the defaults. Missing or corrupt
// storage yields the defaults; Load never fails.
func (s *Store) Load() KeySet {
	raw, err := s.slots.Get(SlotKeys)
	if errors.Is(err, storage.ErrNotFound) {
		ks := Defaults()
		if legacy, err := s.slots.Get(SlotEditKey); err == nil && strings.TrimSpace(legacy) != "" {
			ks.values[EditModeKey] = legacy
		}
		return ks
	}
	if err != nil {
		s.log.WithError(err).Debug("key record unreadable, using defaults")
		return Defaults()
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		s.log.WithError(err).Debug("key record corrupt, using defaults")
		return Defaults()
	}
	strs := make(map[string]string, len(decoded))
	for name, value := range decoded {
		if text, ok := value.(string); ok {
			strs[name] = text
		}
	}
	return FromMap(strs)
}

// Save overwrites the persisted record with the full set.
func (s *Store) Save(k KeySet) error {
	buf, err := json.Marshal(k.Strings())
	if err != nil {
		return fmt.Errorf("failed to encode keys: %w", err)
	}
	// The record goes last: an error means the record was not written.
	if err := s.slots.Set(SlotEditKey, k.Get(EditModeKey)); err != nil {
		return fmt.Errorf("failed to mirror edit key: %w", err)
	}
	if err := s.slots.Set(SlotKeys, string(buf)); err != nil {
		return fmt.Errorf("failed to save keys: %w", err)
	}
	s.log.WithField("fields", len(fieldOrder)).Debug("keys saved")
	return nil
}

// LoadBackendURL returns the persisted backend URL, or fallback.
func (s *Store) LoadBackendURL(fallback string) string {
	value, err := s.slots.Get(SlotBackendURL)
	if err != nil || strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func (s *Store) SaveBackendURL(url string) error {
	if err := s.slots.Set(SlotBackendURL, strings.TrimSpace(url)); err != nil {
		return fmt.Errorf("failed to save backend url: %w", err)
	}
	return nil
}
