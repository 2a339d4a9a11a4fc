package records

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValidateBody checks that body is a JSON object within MaxBodySize.
func ValidateBody(body json.RawMessage) error {
	if len(body) > MaxBodySize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidBody, len(body), MaxBodySize)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ErrInvalidBody
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return nil
}

func validateCollection(c Collection) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, c)
	}
	return nil
}
