package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalid wraps schema violations.
var ErrInvalid = errors.New("invalid settings")

const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["mode"],
  "properties": {
    "mode": {"type": "string", "enum": ["direct", "project_adjacent", "custom_folder"]},
    "projectAdjacentFolder": {"type": "string"},
    "customFolderPath": {"type": "string"},
    "addToComposition": {"type": "boolean"},
    "timelineOptions": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "placement": {"type": "string", "enum": ["current_time", "timeline_start"]},
        "sequence": {"type": "boolean"},
        "staggerFrames": {"type": "integer", "minimum": 0}
      }
    },
    "fileManagement": {
      "type": "object",
      "properties": {
        "keepOriginalName": {"type": "boolean"},
        "addTimestamp": {"type": "boolean"},
        "createTagFolders": {"type": "boolean"},
        "deleteFromEagle": {"type": "boolean"}
      }
    },
    "communicationPort": {"type": "integer", "minimum": 1024, "maximum": 65535}
  },
  "if": {"properties": {"mode": {"const": "custom_folder"}}},
  "then": {"required": ["customFolderPath"], "properties": {"customFolderPath": {"minLength": 1}}}
}`

var schemaLoader = gojsonschema.NewStringLoader(snapshotSchema)

// Validate checks raw JSON against the snapshot schema.
func Validate(raw []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(details, "; "))
}
