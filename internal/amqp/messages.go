package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"contador/internal/core"
)

// SnapshotRecomputeMessage asks the worker to rebuild one family's snapshot
// rows for a period. The worker reads the ledger itself; the message carries
// only the key.
type SnapshotRecomputeMessage struct {
	FamilyID  int64     `json:"family_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSnapshotRecomputeMessage(familyID int64, period core.Period, reason string) *SnapshotRecomputeMessage {
	return &SnapshotRecomputeMessage{
		FamilyID:  familyID,
		Year:      period.Year,
		Month:     period.Month,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (m *SnapshotRecomputeMessage) Period() core.Period {
	return core.Period{Year: m.Year, Month: m.Month}
}

func (m *SnapshotRecomputeMessage) Validate() error {
	if m.FamilyID <= 0 {
		return core.ErrInvalidFamily
	}
	return m.Period().Validate()
}

func (m *SnapshotRecomputeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotRecomputeMessageFromJSON decodes and validates a message.
func SnapshotRecomputeMessageFromJSON(data []byte) (*SnapshotRecomputeMessage, error) {
	var msg SnapshotRecomputeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recompute message: %w", err)
	}
	return &msg, nil
}
