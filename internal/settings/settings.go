// Package settings defines the settings snapshot mirrored from the
// Initiator to the Responder.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/five82/eaglebridge/internal/wire"
)

const (
	MinPort     = 1024
	MaxPort     = 65535
	DefaultPort = 8080
)

// ErrPortOutOfRange is returned for ports outside 1024-65535.
var ErrPortOutOfRange = errors.New("port out of range")

// ImportMode selects where imported files are copied.
type ImportMode string

const (
	ModeDirect          ImportMode = "direct"
	ModeProjectAdjacent ImportMode = "project_adjacent"
	ModeCustomFolder    ImportMode = "custom_folder"
)

// Placement selects where imported layers land on the timeline.
type Placement string

const (
	PlaceCurrentTime   Placement = "current_time"
	PlaceTimelineStart Placement = "timeline_start"
)

// Timeline controls composition placement.
type Timeline struct {
	Enabled       bool      `json:"enabled" toml:"enabled"`
	Placement     Placement `json:"placement" toml:"placement"`
	Sequence      bool      `json:"sequence" toml:"sequence"`
	StaggerFrames int       `json:"staggerFrames" toml:"stagger_frames"`
}

// FileManagement holds the file-naming rules.
type FileManagement struct {
	KeepOriginalName bool `json:"keepOriginalName" toml:"keep_original_name"`
	AddTimestamp     bool `json:"addTimestamp" toml:"add_timestamp"`
	CreateTagFolders bool `json:"createTagFolders" toml:"create_tag_folders"`
	DeleteFromEagle  bool `json:"deleteFromEagle" toml:"delete_from_eagle"`
}

// Snapshot is the full user-configurable settings object. The Initiator owns
// it; the Responder only caches it.
type Snapshot struct {
	Mode                  ImportMode     `json:"mode" toml:"mode"`
	ProjectAdjacentFolder string         `json:"projectAdjacentFolder,omitempty" toml:"project_adjacent_folder,omitempty"`
	CustomFolderPath      string         `json:"customFolderPath,omitempty" toml:"custom_folder_path,omitempty"`
	AddToComposition      bool           `json:"addToComposition" toml:"add_to_composition"`
	Timeline              Timeline       `json:"timelineOptions" toml:"timeline"`
	FileManagement        FileManagement `json:"fileManagement" toml:"file_management"`
	CommunicationPort     int            `json:"communicationPort" toml:"communication_port"`
}

// Default returns the first-run settings.
func Default() Snapshot {
	return Snapshot{
		Mode:                  ModeProjectAdjacent,
		ProjectAdjacentFolder: "Eagle_Assets",
		AddToComposition:      true,
		Timeline: Timeline{
			Enabled:   true,
			Placement: PlaceCurrentTime,
		},
		FileManagement: FileManagement{
			KeepOriginalName: true,
		},
		CommunicationPort: DefaultPort,
	}
}

// ValidatePort rejects ports outside the allowed range. Values are never
// clamped.
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("%w: %d (want %d-%d)", ErrPortOutOfRange, port, MinPort, MaxPort)
	}
	return nil
}

// Decode validates raw against the snapshot schema and unmarshals it.
func Decode(raw []byte) (Snapshot, error) {
	if err := Validate(raw); err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", wire.ErrMalformedResponse, err)
	}
	return s, nil
}

// NewUpdate builds the /settings-sync payload for s.
func NewUpdate(s Snapshot) (wire.SettingsUpdate, error) {
	if err := ValidatePort(s.CommunicationPort); err != nil {
		return wire.SettingsUpdate{}, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return wire.SettingsUpdate{}, fmt.Errorf("marshal settings: %w", err)
	}
	return wire.SettingsUpdate{
		Type:        wire.SettingsUpdateType,
		Settings:    raw,
		Preferences: wire.Preferences{CommunicationPort: s.CommunicationPort},
	}, nil
}
