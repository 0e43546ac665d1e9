// Package protocol defines the wire messages exchanged between the
// browser-side bridge client and the editor-host process. Messages are
// flat tagged JSON records; framing is the transport's job. Every message
// carries a "type" field, and dispatchers treat unknown or malformed
// records as log-and-drop, never as fatal.
package protocol

import (
	"encoding/json"

	"github.com/techidiots/webaibridge/internal/errors"
)

// Type tags a wire message.
type Type string

const (
	TypePing                Type = "PING"
	TypePong                Type = "PONG"
	TypeGetChips            Type = "GET_CHIPS"
	TypeChipsList           Type = "CHIPS_LIST"
	TypeChipsInsert         Type = "CHIPS_INSERT"
	TypeClearChips          Type = "CLEAR_CHIPS"
	TypeRemoveChip          Type = "REMOVE_CHIP"
	TypeGetContext          Type = "GET_CONTEXT"
	TypeContextResponse     Type = "CONTEXT_RESPONSE"
	TypeContextStream       Type = "CONTEXT_RESPONSE_STREAM"
	TypeGetContextInfo      Type = "GET_CONTEXT_INFO"
	TypeContextInfoResponse Type = "CONTEXT_INFO_RESPONSE"
	TypeGetFileList         Type = "GET_FILE_LIST"
	TypeFileListResponse    Type = "FILE_LIST_RESPONSE"
	TypeAIResponse          Type = "AI_RESPONSE"
	TypeInstanceInfo        Type = "INSTANCE_INFO"
)

var knownTypes = map[Type]bool{
	TypePing: true, TypePong: true,
	TypeGetChips: true, TypeChipsList: true, TypeChipsInsert: true,
	TypeClearChips: true, TypeRemoveChip: true,
	TypeGetContext: true, TypeContextResponse: true, TypeContextStream: true,
	TypeGetContextInfo: true, TypeContextInfoResponse: true,
	TypeGetFileList: true, TypeFileListResponse: true,
	TypeAIResponse: true, TypeInstanceInfo: true,
}

// Chip is the wire form of a context chip held by the editor host.
type Chip struct {
	ID         string `json:"id"`
	Kind       string `json:"type"`
	Label      string `json:"label"`
	Text       string `json:"text"`
	LanguageID string `json:"languageId,omitempty"`
	FilePath   string `json:"filePath,omitempty"`
	LineRange  string `json:"lineRange,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// StreamChunk is one sub-chunk of a streamed context response. Sub-chunks
// for a request are reassembled by concatenation in arrival order.
type StreamChunk struct {
	Text string `json:"text"`
}

// ContextInfo summarizes one fetchable context type without its content.
type ContextInfo struct {
	Label  string `json:"label"`
	Tokens int    `json:"tokens"`
}

// FileEntry describes one workspace file for the picker.
type FileEntry struct {
	Path       string `json:"path"`
	Label      string `json:"label"`
	LanguageID string `json:"languageId,omitempty"`
}

// Message is the flat wire record. Fields not used by a given type stay at
// their zero value and are omitted from the encoding.
type Message struct {
	Type Type `json:"type"`

	// PING / PONG / INSTANCE_INFO identity fields.
	Port          int    `json:"port,omitempty"`
	WorkspaceName string `json:"workspaceName,omitempty"`
	WorkspacePath string `json:"workspacePath,omitempty"`

	// Chip sync and mutation.
	Chips  []Chip `json:"chips,omitempty"`
	ChipID string `json:"chipId,omitempty"`

	// Request/response correlation and context payloads.
	RequestID   string                 `json:"requestId,omitempty"`
	ContextType string                 `json:"contextType,omitempty"`
	FilePath    string                 `json:"filePath,omitempty"`
	Label       string                 `json:"label,omitempty"`
	Text        string                 `json:"text,omitempty"`
	Tokens      int                    `json:"tokens,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Chunks      []StreamChunk          `json:"chunks,omitempty"`
	TotalSize   int                    `json:"totalSize,omitempty"`
	ContextInfo map[string]ContextInfo `json:"contextInfo,omitempty"`
	Files       []FileEntry            `json:"files,omitempty"`

	// AI_RESPONSE capture fields.
	IsCode    bool   `json:"isCode,omitempty"`
	Site      string `json:"site,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Encode marshals a message for the wire.
func Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return data, nil
}

// Decode parses a wire record and validates its tag and the fields the tag
// requires. Returns a MALFORMED_MESSAGE error for unparseable input,
// missing tags, unknown tags, and missing required fields.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.NewMalformedMessage(err.Error())
	}

	if msg.Type == "" {
		return nil, errors.NewMalformedMessage("missing type field")
	}
	if !knownTypes[msg.Type] {
		return nil, errors.NewMalformedMessage("unknown type " + string(msg.Type))
	}

	switch msg.Type {
	case TypePong, TypeInstanceInfo:
		if msg.Port == 0 {
			return nil, errors.NewMalformedMessage(string(msg.Type) + " missing port")
		}
	case TypeGetContext:
		if msg.RequestID == "" {
			return nil, errors.NewMalformedMessage("GET_CONTEXT missing requestId")
		}
		if msg.ContextType == "" {
			return nil, errors.NewMalformedMessage("GET_CONTEXT missing contextType")
		}
	case TypeContextResponse, TypeContextStream, TypeGetContextInfo,
		TypeContextInfoResponse, TypeGetFileList, TypeFileListResponse:
		if msg.RequestID == "" {
			return nil, errors.NewMalformedMessage(string(msg.Type) + " missing requestId")
		}
	case TypeRemoveChip:
		if msg.ChipID == "" {
			return nil, errors.NewMalformedMessage("REMOVE_CHIP missing chipId")
		}
	case TypeAIResponse:
		if msg.Text == "" {
			return nil, errors.NewMalformedMessage("AI_RESPONSE missing text")
		}
	}

	return &msg, nil
}
