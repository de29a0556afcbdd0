package setup

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/lyngdorf-core/internal/entry"
	"github.com/nerrad567/lyngdorf-core/internal/receiver"
)

// Command names accepted in CommandMessage.Command.
const (
	CommandPower  = "power"
	CommandMute   = "mute"
	CommandVolume = "volume"
	CommandSource = "source"
)

// CommandMessage asks a receiver to change state.
// Topic: lyngdorf/entry/{entry_id}/command
type CommandMessage struct {
	// ID is echoed in logs for correlation.
	ID string `json:"id,omitempty"`

	// Zone defaults to the main zone.
	Zone string `json:"zone,omitempty"`

	Command  string   `json:"command"`
	On       *bool    `json:"on,omitempty"`
	VolumeDB *float64 `json:"volume_db,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// frame renders the command as a protocol frame for model.
func (c CommandMessage) frame(m receiver.Model) (string, error) {
	zoneName := c.Zone
	if zoneName == "" {
		zoneName = receiver.ZoneMain
	}
	zone, ok := m.Zone(zoneName)
	if !ok {
		return "", fmt.Errorf("%w: %s has no zone %q", ErrInvalidCommand, m.Name, zoneName)
	}

	var (
		feature receiver.Feature
		msg     receiver.Message
	)
	switch c.Command {
	case CommandPower, CommandMute:
		if c.On == nil {
			return "", fmt.Errorf("%w: %s needs on", ErrInvalidCommand, c.Command)
		}
		name, suffix := receiver.CmdPower, "OFF"
		feature = receiver.FeaturePower
		if c.Command == CommandMute {
			name, feature = receiver.CmdMute, receiver.FeatureMute
		}
		if *c.On {
			suffix = "ON"
		}
		msg = receiver.Message{Name: zone.Prefix + name + suffix}
	case CommandVolume:
		if c.VolumeDB == nil {
			return "", fmt.Errorf("%w: volume needs volume_db", ErrInvalidCommand)
		}
		feature = receiver.FeatureVolume
		msg = receiver.Message{Name: zone.Prefix + receiver.CmdVolume, Args: receiver.FormatVolume(*c.VolumeDB, m)}
	case CommandSource:
		if c.Source == "" {
			return "", fmt.Errorf("%w: source needs source", ErrInvalidCommand)
		}
		feature = receiver.FeatureSource
		msg = receiver.Message{Name: zone.Prefix + receiver.CmdSource, Args: c.Source}
	default:
		return "", fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, c.Command)
	}

	if !slices.Contains(zone.Features, feature) {
		return "", fmt.Errorf("%w: %s does not support %s", ErrInvalidCommand, zone.Name, feature)
	}
	return msg.String(), nil
}

// ZoneState is the decoded state of one zone. Unreported values are nil.
type ZoneState struct {
	Name     string   `json:"name"`
	Power    *bool    `json:"power,omitempty"`
	Mute     *bool    `json:"mute,omitempty"`
	VolumeDB *float64 `json:"volume_db,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// StateMessage is the published snapshot of a receiver.
// Topic: lyngdorf/entry/{entry_id}/state (retained)
type StateMessage struct {
	EntryID   string         `json:"entry_id"`
	Title     string         `json:"title"`
	Model     string         `json:"model"`
	Host      string         `json:"host"`
	Timestamp time.Time      `json:"timestamp"`
	Zones     []ZoneState    `json:"zones"`
	Raw       receiver.State `json:"raw"`
}

func newStateMessage(e *entry.ConfigEntry, m receiver.Model, s receiver.State) StateMessage {
	msg := StateMessage{
		EntryID:   e.ID,
		Title:     e.Title,
		Model:     m.Name,
		Host:      e.Data.Host,
		Timestamp: time.Now().UTC(),
		Zones:     make([]ZoneState, 0, len(m.Zones)),
		Raw:       s,
	}
	for _, z := range m.Zones {
		zs := ZoneState{Name: z.Name, Source: s[z.Prefix+receiver.CmdSource]}
		if on, ok := s.On(z, receiver.CmdPower); ok {
			zs.Power = &on
		}
		if on, ok := s.On(z, receiver.CmdMute); ok {
			zs.Mute = &on
		}
		if db, ok := s.Volume(z); ok {
			zs.VolumeDB = &db
		}
		msg.Zones = append(msg.Zones, zs)
	}
	return msg
}

// metricField names the InfluxDB field for a zone's volume: volume_db for
// the main zone, zone_b_volume_db for Zone B.
func metricField(z receiver.ZoneSpec) string {
	if z.Prefix == "" {
		return "volume_db"
	}
	return "zone_" + strings.ToLower(strings.TrimPrefix(z.Name, "Zone ")) + "_volume_db"
}
