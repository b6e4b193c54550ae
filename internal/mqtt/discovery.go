// Home Assistant MQTT auto-discovery.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tphakala/lensnet-go/internal/logger"
)

const (
	SensorTopLabel   = "top_label"
	SensorConfidence = "confidence"
	SensorModel      = "model"
	SensorHighlight  = "highlight"
	SensorStatus     = "status"
)

const deviceIDPrefix = "lensnet"

// allSensors maps each entity to its Home Assistant component.
var allSensors = []struct{ id, component string }{
	{SensorStatus, "binary_sensor"},
	{SensorHighlight, "binary_sensor"},
	{SensorTopLabel, "sensor"},
	{SensorConfidence, "sensor"},
	{SensorModel, "sensor"},
}

// Home Assistant requires IDs to contain only [a-zA-Z0-9_-].
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID makes id usable in topics and entity ids.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name                string           `json:"name"`
	UniqueID            string           `json:"unique_id"`
	StateTopic          string           `json:"state_topic"`
	ValueTemplate       string           `json:"value_template,omitempty"`
	UnitOfMeasurement   string           `json:"unit_of_measurement,omitempty"`
	DeviceClass         string           `json:"device_class,omitempty"`
	StateClass          string           `json:"state_class,omitempty"`
	Icon                string           `json:"icon,omitempty"`
	EntityCategory      string           `json:"entity_category,omitempty"`
	PayloadOn           string           `json:"payload_on,omitempty"`
	PayloadOff          string           `json:"payload_off,omitempty"`
	PayloadAvailable    string           `json:"payload_available,omitempty"`
	PayloadNotAvailable string           `json:"payload_not_available,omitempty"`
	AvailabilityTopic   string           `json:"availability_topic,omitempty"`
	Device              DiscoveryDevice  `json:"device"`
	Origin              *DiscoveryOrigin `json:"origin,omitempty"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryOrigin provides information about the software creating the discovery message.
type DiscoveryOrigin struct {
	Name       string `json:"name"`
	SWVersion  string `json:"sw_version,omitempty"`
	SupportURL string `json:"support_url,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // default homeassistant
	BaseTopic       string
	DeviceName      string
	NodeID          string
	Version         string
}

// Discovery publishes Home Assistant discovery messages.
type Discovery struct {
	client Client
	config DiscoveryConfig
}

// NewDiscovery creates a discovery publisher.
func NewDiscovery(client Client, config DiscoveryConfig) *Discovery {
	if config.DiscoveryPrefix == "" {
		config.DiscoveryPrefix = "homeassistant"
	}
	if config.DeviceName == "" {
		config.DeviceName = "LensNet"
	}
	return &Discovery{client: client, config: config}
}

// Publish sends retained discovery configs for every entity.
func (d *Discovery) Publish(ctx context.Context) error {
	log := GetLogger()
	nodeID := SanitizeID(d.config.NodeID)
	deviceID := fmt.Sprintf("%s_%s", deviceIDPrefix, nodeID)
	device := DiscoveryDevice{
		Identifiers:  []string{deviceID},
		Name:         d.config.DeviceName,
		Manufacturer: "LensNet-Go",
		Model:        "Live Camera Classifier",
		SWVersion:    d.config.Version,
	}
	availability := d.config.BaseTopic + "/" + TopicStatus
	live := d.config.BaseTopic + "/" + TopicLive

	payloads := map[string]*DiscoveryPayload{
		SensorStatus: {
			Name:                "Status",
			StateTopic:          availability,
			DeviceClass:         "connectivity",
			EntityCategory:      "diagnostic",
			PayloadOn:           StatusOnline,
			PayloadOff:          StatusOffline,
			PayloadAvailable:    StatusOnline,
			PayloadNotAvailable: StatusOffline,
		},
		SensorHighlight: {
			Name:              "Highlighted Object",
			StateTopic:        live,
			ValueTemplate:     "{{ 'ON' if value_json.highlighted else 'OFF' }}",
			DeviceClass:       "occupancy",
			PayloadOn:         "ON",
			PayloadOff:        "OFF",
			AvailabilityTopic: availability,
		},
		SensorTopLabel: {
			Name:              "Top Label",
			StateTopic:        live,
			ValueTemplate:     "{{ value_json.top | default('none') }}",
			Icon:              "mdi:camera-iris",
			AvailabilityTopic: availability,
		},
		SensorConfidence: {
			Name:              "Confidence",
			StateTopic:        live,
			ValueTemplate:     "{{ (value_json.confidence * 100) | round(1) }}",
			UnitOfMeasurement: "%",
			StateClass:        "measurement",
			Icon:              "mdi:percent",
			AvailabilityTopic: availability,
		},
		SensorModel: {
			Name:              "Model",
			StateTopic:        d.config.BaseTopic + "/" + TopicModel,
			ValueTemplate:     "{{ value_json.model }}",
			EntityCategory:    "diagnostic",
			Icon:              "mdi:brain",
			AvailabilityTopic: availability,
		},
	}

	for _, s := range allSensors {
		p := payloads[s.id]
		p.UniqueID = deviceID + "_" + s.id
		p.Device = device
		p.Origin = d.origin()
		if err := d.publishPayload(ctx, d.topic(s.component, nodeID, s.id), p); err != nil {
			log.Error("failed to publish discovery", logger.String("sensor", s.id), logger.Error(err))
			return fmt.Errorf("publish %s discovery: %w", s.id, err)
		}
	}
	log.Info("Home Assistant discovery published",
		logger.String("discovery_prefix", d.config.DiscoveryPrefix),
		logger.Int("entities", len(allSensors)))
	return nil
}

// Remove publishes empty retained payloads so Home Assistant drops the entities.
func (d *Discovery) Remove(ctx context.Context) error {
	nodeID := SanitizeID(d.config.NodeID)
	var firstErr error
	for _, s := range allSensors {
		if err := d.client.Publish(ctx, d.topic(s.component, nodeID, s.id), nil, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Discovery) publishPayload(ctx context.Context, topic string, payload *DiscoveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery payload: %w", err)
	}
	// discovery configs must be retained
	return d.client.Publish(ctx, topic, data, true)
}

func (d *Discovery) topic(component, nodeID, sensor string) string {
	return fmt.Sprintf("%s/%s/%s/%s_%s/config", d.config.DiscoveryPrefix, component, nodeID, nodeID, sensor)
}

func (d *Discovery) origin() *DiscoveryOrigin {
	return &DiscoveryOrigin{
		Name:       "LensNet-Go",
		SWVersion:  d.config.Version,
		SupportURL: "https://github.com/tphakala/lensnet-go",
	}
}
