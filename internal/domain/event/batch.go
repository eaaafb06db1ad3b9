package event

import "encoding/json"

// Batch marshals a payload into a single-event batch. The engine stamps
// addressing, causation, and timestamps before append.
func Batch(t Type, payload any) ([]Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []Event{{Type: t, PayloadJSON: data}}, nil
}
