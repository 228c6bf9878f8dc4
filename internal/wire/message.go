package wire

import (
	"encoding/json"
	"fmt"
)

// Kind is the type tag of an Envelope.
type Kind string

const (
	KindFileExport   Kind = "file_export"
	KindStatus       Kind = "status"
	KindAEStatus     Kind = "ae_status"
	KindPortChanged  Kind = "port_changed"
	KindSettingsAck  Kind = "settings_ack"
	KindNotification Kind = "notification"
)

// Message is the decoded payload of an Envelope. The concrete type is one
// of the structs below; Unknown carries anything else.
type Message interface {
	Kind() Kind
}

// ExportedFile describes one asset handed over for import.
type ExportedFile struct {
	Path string   `json:"path"`
	Name string   `json:"name"`
	Ext  string   `json:"ext,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

// FileExport asks the Initiator to import files.
type FileExport struct {
	Files  []ExportedFile `json:"files"`
	Target string         `json:"target,omitempty"`
}

func (FileExport) Kind() Kind { return KindFileExport }

// Status is a free-form status line from the Responder.
type Status struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (Status) Kind() Kind { return KindStatus }

// AEStatus is the Initiator's periodic status push.
type AEStatus struct {
	Connected   bool   `json:"connected"`
	ProjectName string `json:"projectName,omitempty"`
	ActiveComp  string `json:"activeComp,omitempty"`
	Port        int    `json:"port"`
	Version     string `json:"version,omitempty"`
}

func (AEStatus) Kind() Kind { return KindAEStatus }

// PortChanged announces that the Responder now listens on NewPort.
type PortChanged struct {
	OldPort int `json:"oldPort"`
	NewPort int `json:"newPort"`
}

func (PortChanged) Kind() Kind { return KindPortChanged }

// SettingsAck confirms a settings push was applied.
type SettingsAck struct {
	Port    int  `json:"port"`
	Applied bool `json:"applied"`
}

func (SettingsAck) Kind() Kind { return KindSettingsAck }

// Notification is a user-facing message.
type Notification struct {
	Level LogLevel `json:"level"`
	Text  string   `json:"text"`
}

func (Notification) Kind() Kind { return KindNotification }

// Unknown is returned for envelope types this build does not understand.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (u Unknown) Kind() Kind { return Kind(u.Type) }

// Decode turns an envelope into its typed message. Unknown types decode to
// Unknown with a nil error; bad payloads wrap ErrMalformedResponse.
func Decode(env Envelope) (Message, error) {
	var msg Message
	switch Kind(env.Type) {
	case KindFileExport:
		msg = &FileExport{}
	case KindStatus:
		msg = &Status{}
	case KindAEStatus:
		msg = &AEStatus{}
	case KindPortChanged:
		msg = &PortChanged{}
	case KindSettingsAck:
		msg = &SettingsAck{}
	case KindNotification:
		msg = &Notification{}
	default:
		return Unknown{Type: env.Type, Raw: env.Data}, nil
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %w", ErrMalformedResponse, env.Type, err)
		}
	}
	return deref(msg), nil
}

func deref(msg Message) Message {
	switch m := msg.(type) {
	case *FileExport:
		return *m
	case *Status:
		return *m
	case *AEStatus:
		return *m
	case *PortChanged:
		return *m
	case *SettingsAck:
		return *m
	case *Notification:
		return *m
	}
	return msg
}
