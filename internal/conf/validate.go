// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Supported values shared with the packages that consume them.
var (
	SupportedModels          = []string{"mobilenet_v2", "efficientnet_lite0", "resnet50"}
	SupportedRefreshPolicies = []string{"on_raise", "any_sighting"}
	SupportedBlurStyles      = []string{"pixelate", "blur"}
	SupportedPositions       = []string{"back", "front"}
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and normalizes map keys.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) error{
		validateCameraSettings,
		validateModelSettings,
		validatePipelineSettings,
		validateHighlightSettings,
		validateBestShotSettings,
		validatePrivacySettings,
		validateLocationSettings,
		validateOutputSettings,
		validateMQTTSettings,
		validateListenSettings,
		validateMonitoringSettings,
	} {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateCameraSettings(s *Settings) error {
	if s.Camera.Driver != "replay" {
		return fmt.Errorf("camera.driver %q is not supported", s.Camera.Driver)
	}
	if !slices.Contains(SupportedPositions, s.Camera.Position) {
		return fmt.Errorf("camera.position must be one of %v", SupportedPositions)
	}
	if s.Camera.FrameRate <= 0 || s.Camera.FrameRate > 240 {
		return fmt.Errorf("camera.framerate must be between 0 and 240, got %v", s.Camera.FrameRate)
	}
	return nil
}

func validateModelSettings(s *Settings) error {
	if !slices.Contains(SupportedModels, s.Model.Type) {
		return fmt.Errorf("model.type %q is not one of %v", s.Model.Type, SupportedModels)
	}
	if s.Model.TopK < 1 || s.Model.TopK > 10 {
		return fmt.Errorf("model.topk must be between 1 and 10, got %d", s.Model.TopK)
	}
	if s.Model.MinConfidence < 0 || s.Model.MinConfidence >= 1 {
		return fmt.Errorf("model.minconfidence must be in [0, 1), got %v", s.Model.MinConfidence)
	}
	if s.Model.Threads < 0 {
		return fmt.Errorf("model.threads must not be negative")
	}
	return nil
}

func validatePipelineSettings(s *Settings) error {
	if s.Throttle.MinInterval <= 0 {
		return fmt.Errorf("throttle.mininterval must be positive")
	}
	if s.Live.ExpiryWindow <= 0 {
		return fmt.Errorf("live.expirywindow must be positive")
	}
	if s.Live.SweepInterval <= 0 || s.Live.SweepInterval > s.Live.ExpiryWindow {
		return fmt.Errorf("live.sweepinterval must be positive and not exceed live.expirywindow")
	}
	if s.Live.MaxResults < 1 {
		return fmt.Errorf("live.maxresults must be at least 1")
	}
	if !slices.Contains(SupportedRefreshPolicies, s.Live.RefreshPolicy) {
		return fmt.Errorf("live.refreshpolicy must be one of %v", SupportedRefreshPolicies)
	}
	return nil
}

func validateHighlightSettings(s *Settings) error {
	normalized := make(map[string]float64, len(s.Highlight.Rules))
	for label, threshold := range s.Highlight.Rules {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("highlight rule %q threshold must be in [0, 1], got %v", label, threshold)
		}
		normalized[strings.ToLower(strings.TrimSpace(label))] = threshold
	}
	s.Highlight.Rules = normalized
	return nil
}

func validateBestShotSettings(s *Settings) error {
	b := &s.BestShot
	if b.Duration < time.Second {
		return fmt.Errorf("bestshot.duration must be at least 1s")
	}
	if b.Duration%time.Second != 0 {
		return fmt.Errorf("bestshot.duration must be a whole number of seconds")
	}
	if b.Threshold < 0 || b.Threshold > 1 {
		return fmt.Errorf("bestshot.threshold must be in [0, 1]")
	}
	if b.CaptureInterval <= 0 {
		return fmt.Errorf("bestshot.captureinterval must be positive")
	}
	if b.KeepTop < 1 {
		return fmt.Errorf("bestshot.keeptop must be at least 1")
	}
	if b.ThumbnailSize < 0 {
		return fmt.Errorf("bestshot.thumbnailsize must not be negative")
	}
	if b.FinalizeTimeout < 0 {
		return fmt.Errorf("bestshot.finalizetimeout must not be negative")
	}
	return nil
}

func validatePrivacySettings(s *Settings) error {
	if !slices.Contains(SupportedBlurStyles, s.Privacy.Style) {
		return fmt.Errorf("privacy.style must be one of %v", SupportedBlurStyles)
	}
	if s.Privacy.BlockSize < 2 {
		return fmt.Errorf("privacy.blocksize must be at least 2")
	}
	return nil
}

func validateLocationSettings(s *Settings) error {
	if !s.Location.Enabled {
		return nil
	}
	if s.Location.Latitude < -90 || s.Location.Latitude > 90 {
		return fmt.Errorf("location.latitude must be between -90 and 90")
	}
	if s.Location.Longitude < -180 || s.Location.Longitude > 180 {
		return fmt.Errorf("location.longitude must be between -180 and 180")
	}
	return nil
}

func validateOutputSettings(s *Settings) error {
	if s.Output.SQLite.Enabled && s.Output.MySQL.Enabled {
		return fmt.Errorf("only one of output.sqlite and output.mysql can be enabled")
	}
	if s.Output.SQLite.Enabled && s.Output.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path is required")
	}
	if s.Output.MySQL.Enabled && (s.Output.MySQL.Host == "" || s.Output.MySQL.Database == "") {
		return fmt.Errorf("output.mysql.host and output.mysql.database are required")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	u, err := url.Parse(s.MQTT.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt.broker %q is not a valid URL", s.MQTT.Broker)
	}
	if s.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic is required")
	}
	return nil
}

func validateListenSettings(s *Settings) error {
	for name, listen := range map[string]struct {
		enabled bool
		addr    string
	}{
		"telemetry.listen": {s.Telemetry.Enabled, s.Telemetry.Listen},
		"api.listen":       {s.API.Enabled, s.API.Listen},
	} {
		if !listen.enabled {
			continue
		}
		if _, _, err := net.SplitHostPort(listen.addr); err != nil {
			return fmt.Errorf("%s %q is invalid: %w", name, listen.addr, err)
		}
	}
	return nil
}

func validateMonitoringSettings(s *Settings) error {
	m := s.Monitoring
	if !m.Enabled {
		return nil
	}
	if m.Interval <= 0 {
		return fmt.Errorf("monitoring.interval must be positive")
	}
	if m.CPULow >= m.CPUHigh || m.CPUHigh > 100 {
		return fmt.Errorf("monitoring.cpulow must be below monitoring.cpuhigh (max 100)")
	}
	if m.MaxIntervalFactor < 1 {
		return fmt.Errorf("monitoring.maxintervalfactor must be at least 1")
	}
	if m.DiskWarning < 0 || m.DiskWarning > 100 {
		return fmt.Errorf("monitoring.diskwarning must be within [0, 100]")
	}
	return nil
}
