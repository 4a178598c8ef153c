package scanning

import "github.com/google/generative-ai-go/genai"

const (
	fieldTranslation = "fullTranslationSpanish"
	fieldConversions = "currencyConversions"
	fieldOriginal    = "originalJPY"
	fieldAmount      = "amountEUR"
)

// translationSchema is the structured output constraint sent to Gemini
var translationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		fieldTranslation: {
			Type:        genai.TypeString,
			Description: "The complete translation of all Japanese text in the image into Spanish.",
		},
		fieldConversions: {
			Type:        genai.TypeArray,
			Description: "A list of all detected prices and their conversion from JPY to EUR.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					fieldOriginal: {
						Type:        genai.TypeString,
						Description: "The original price string detected in Japanese Yen (e.g., '1500円').",
					},
					fieldAmount: {
						Type:        genai.TypeNumber,
						Description: "The converted amount in Euros.",
					},
				},
				Required: []string{fieldOriginal, fieldAmount},
			},
		},
	},
	Required: []string{fieldTranslation, fieldConversions},
}

// translationJSONSchema is the same constraint as plain JSON Schema, for backends that take one
func translationJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			fieldTranslation: map[string]any{"type": "string"},
			fieldConversions: map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						fieldOriginal: map[string]any{"type": "string"},
						fieldAmount:   map[string]any{"type": "number"},
					},
					"required": []string{fieldOriginal, fieldAmount},
				},
			},
		},
		"required": []string{fieldTranslation, fieldConversions},
	}
}
