package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// stripCodeFences removes markdown code blocks some models wrap around JSON
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseTranslationJSON parses and validates an image analysis response.
// A body that does not match the schema never yields a partial result.
func parseTranslationJSON(text string) (*TranslationResult, error) {
	text = stripCodeFences(text)
	if strings.HasPrefix(text, "[") {
		return nil, fmt.Errorf("%w: expected a JSON object, got an array", ErrInvalidResponseFormat)
	}

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("%w: no JSON object found in response", ErrInvalidResponseFormat)
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("%w: invalid JSON object in response", ErrInvalidResponseFormat)
	}
	text = text[startIdx : endIdx+1]

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling json: %v", ErrInvalidResponseFormat, err)
	}

	var result TranslationResult
	if err := decodeField(raw, fieldTranslation, &result.TranslatedText); err != nil {
		return nil, err
	}

	var entries []map[string]json.RawMessage
	if err := decodeField(raw, fieldConversions, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: %s must be an array", ErrInvalidResponseFormat, fieldConversions)
	}

	result.Conversions = make([]ConversionEntry, 0, len(entries))
	for i, entry := range entries {
		var conv ConversionEntry
		if err := decodeField(entry, fieldOriginal, &conv.OriginalAmountText); err != nil {
			return nil, fmt.Errorf("conversion %d: %w", i, err)
		}
		if err := decodeField(entry, fieldAmount, &conv.ConvertedEuros); err != nil {
			return nil, fmt.Errorf("conversion %d: %w", i, err)
		}
		result.Conversions = append(result.Conversions, conv)
	}

	result.TranslatedText = strings.TrimSpace(result.TranslatedText)
	return &result, nil
}

// decodeField requires key to be present, non-null and of the destination's JSON type
func decodeField(obj map[string]json.RawMessage, key string, dst any) error {
	value, ok := obj[key]
	if !ok {
		return fmt.Errorf("%w: missing required field %q", ErrInvalidResponseFormat, key)
	}
	if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return fmt.Errorf("%w: field %q is null", ErrInvalidResponseFormat, key)
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrInvalidResponseFormat, key, err)
	}
	return nil
}
