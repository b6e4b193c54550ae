package location

import (
	"fmt"
	"sync"
	"time"

	"github.com/sj14/astral/pkg/astral"
)

// Light describes daylight conditions at a capture.
type Light string

const (
	LightUnknown  Light = ""
	LightNight    Light = "night"
	LightTwilight Light = "twilight"
	LightGolden   Light = "golden_hour"
	LightDay      Light = "daylight"
)

// goldenHour is the span after sunrise and before sunset counted as golden light.
const goldenHour = time.Hour

// SunTimes holds the sun events of one day.
type SunTimes struct {
	CivilDawn time.Time
	Sunrise   time.Time
	Sunset    time.Time
	CivilDusk time.Time
}

// SunCalc computes and caches sun events for an observer.
type SunCalc struct {
	observer astral.Observer

	mu    sync.RWMutex
	cache map[string]SunTimes // keyed by local date
}

// NewSunCalc creates a calculator for c.
func NewSunCalc(c Coordinate) *SunCalc {
	return &SunCalc{
		observer: astral.Observer{Latitude: c.Latitude, Longitude: c.Longitude},
		cache:    make(map[string]SunTimes),
	}
}

// SunTimes returns the sun events on the calendar day of t in t's location.
func (s *SunCalc) SunTimes(t time.Time) (SunTimes, error) {
	key := t.Format(time.DateOnly)
	s.mu.RLock()
	st, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}

	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	var err error
	if st.CivilDawn, err = astral.Dawn(s.observer, day, astral.DepressionCivil); err != nil {
		return SunTimes{}, fmt.Errorf("civil dawn: %w", err)
	}
	if st.Sunrise, err = astral.Sunrise(s.observer, day); err != nil {
		return SunTimes{}, fmt.Errorf("sunrise: %w", err)
	}
	if st.Sunset, err = astral.Sunset(s.observer, day); err != nil {
		return SunTimes{}, fmt.Errorf("sunset: %w", err)
	}
	if st.CivilDusk, err = astral.Dusk(s.observer, day, astral.DepressionCivil); err != nil {
		return SunTimes{}, fmt.Errorf("civil dusk: %w", err)
	}

	s.mu.Lock()
	s.cache[key] = st
	s.mu.Unlock()
	return st, nil
}

// Light classifies t. Days where the sun never rises or sets, which astral
// cannot resolve, report LightUnknown.
func (s *SunCalc) Light(t time.Time) Light {
	st, err := s.SunTimes(t)
	if err != nil {
		return LightUnknown
	}
	switch {
	case t.Before(st.CivilDawn) || !t.Before(st.CivilDusk):
		return LightNight
	case t.Before(st.Sunrise) || !t.Before(st.Sunset):
		return LightTwilight
	case t.Before(st.Sunrise.Add(goldenHour)) || !t.Before(st.Sunset.Add(-goldenHour)):
		return LightGolden
	default:
		return LightDay
	}
}
