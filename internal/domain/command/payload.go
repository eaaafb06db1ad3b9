package command

import "encoding/json"

// Decode unmarshals a command or event payload into its typed form.
func Decode[T any](raw []byte) (T, error) {
	var payload T
	if len(raw) == 0 {
		return payload, nil
	}
	err := json.Unmarshal(raw, &payload)
	return payload, err
}

// DecodeValidator returns a payload validator that only checks the payload
// decodes into T. Semantic checks belong to the handlers, which see state.
func DecodeValidator[T any]() PayloadValidator {
	return func(raw json.RawMessage) error {
		var payload T
		return json.Unmarshal(raw, &payload)
	}
}
