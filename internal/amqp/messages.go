package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Reasons carried by a SyncMessage.
const (
	ReasonImport = "import"
	ReasonAdd    = "add"
	ReasonUpdate = "update"
	ReasonDelete = "delete"
)

// SyncMessage tells the worker that rows changed locally and must be
// mirrored. The worker reads the current state of each id from the database.
type SyncMessage struct {
	IDs       []string  `json:"ids"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSyncMessage(reason string, ids []string) *SyncMessage {
	return &SyncMessage{
		IDs:       append([]string(nil), ids...),
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (m *SyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncMessageFromJSON decodes a message; a message without ids is rejected.
func SyncMessageFromJSON(data []byte) (*SyncMessage, error) {
	var msg SyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if len(msg.IDs) == 0 {
		return nil, errors.New("sync message has no ids")
	}
	return &msg, nil
}
