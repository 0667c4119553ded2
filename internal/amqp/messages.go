package amqp

import (
	"encoding/json"
	"time"
)

// ReconcileMessage asks the worker to rebuild a user's budget counters from
// the expense ledger. It carries only the user id and the reason the
// reconcile was requested; the worker reads everything else from storage.
type ReconcileMessage struct {
	UserID    string    `json:"userId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReconcileMessage creates a reconcile request for the given user.
func NewReconcileMessage(userID, reason string) *ReconcileMessage {
	return &ReconcileMessage{
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReconcileMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReconcileMessageFromJSON creates a message from JSON bytes
func ReconcileMessageFromJSON(data []byte) (*ReconcileMessage, error) {
	var msg ReconcileMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
