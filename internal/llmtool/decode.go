package llmtool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeStrict parses a model response into out, rejecting unknown fields
// and trailing content. Models occasionally wrap the JSON object in a
// markdown fence; the fence is stripped before decoding.
func DecodeStrict(raw json.RawMessage, out any) error {
	cleaned := stripFence(raw)
	dec := json.NewDecoder(bytes.NewReader(cleaned))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("llmtool: decode response: %w", err)
	}
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err == nil {
		return fmt.Errorf("llmtool: trailing content after JSON object")
	}
	return nil
}

func stripFence(raw json.RawMessage) []byte {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return []byte(strings.TrimSpace(s))
}
