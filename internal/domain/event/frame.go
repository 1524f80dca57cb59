package event

import (
	"encoding/json"

	domainerrors "behaviorguard/internal/domain/errors"
)

// Frame is one raw JSON text frame received on an ingestion stream.
// The wire contract is an object with arbitrary fields; only event_type
// and timestamp are required. Unknown fields are preserved so the
// enriched payload can be republished verbatim.
type Frame map[string]json.RawMessage

// DecodeFrame parses a raw text frame and enforces the required fields.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, domainerrors.NewParseError("frame is not a JSON object").WithCause(err)
	}

	raw, ok := f["event_type"]
	if !ok {
		return nil, domainerrors.NewParseError("frame missing event_type")
	}
	var eventType string
	if err := json.Unmarshal(raw, &eventType); err != nil || eventType == "" {
		return nil, domainerrors.NewParseError("event_type must be a non-empty string")
	}

	raw, ok = f["timestamp"]
	if !ok {
		return nil, domainerrors.NewParseError("frame missing timestamp")
	}
	var ts int64
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil, domainerrors.NewParseError("timestamp must be an integer")
	}

	return f, nil
}

// Enrich overwrites or inserts the user_id field with the server-side
// validated identity. Any client-supplied user_id is discarded; the
// gateway is the sole source of truth for identity.
func (f Frame) Enrich(userID string) ([]byte, error) {
	id, err := json.Marshal(userID)
	if err != nil {
		return nil, err
	}
	f["user_id"] = id
	return json.Marshal(f)
}
