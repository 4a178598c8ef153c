package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when Options.Model is empty
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini implements the Client interface using Google Gemini
type Gemini struct {
	client     *genai.Client
	textModel  *genai.GenerativeModel
	imageModel *genai.GenerativeModel
	opts       Options
}

// NewGemini creates a new Gemini Client instance
func NewGemini(apiKey string, opts Options) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	if opts.JPYPerEUR <= 0 {
		return nil, fmt.Errorf("exchange rate must be positive, got %v", opts.JPYPerEUR)
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	textModel := client.GenerativeModel(opts.Model)
	textModel.SetTemperature(0)

	imageModel := client.GenerativeModel(opts.Model)
	imageModel.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))
	imageModel.ResponseMIMEType = "application/json"
	imageModel.ResponseSchema = translationSchema

	return &Gemini{
		client:     client,
		textModel:  textModel,
		imageModel: imageModel,
		opts:       opts,
	}, nil
}

// RequestTextConversion asks Gemini for a bare numeric conversion
func (g *Gemini) RequestTextConversion(ctx context.Context, amountJPY float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout())
	defer cancel()

	resp, err := g.textModel.GenerateContent(ctx, genai.Text(textConversionPrompt(amountJPY, g.opts.JPYPerEUR)))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", fmt.Errorf("no response from gemini")
	}
	return text, nil
}

// RequestImageAnalysis sends the image with the structured output schema and validates the reply
func (g *Gemini) RequestImageAnalysis(ctx context.Context, imageData []byte, contentType string) (*TranslationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout())
	defer cancel()

	jpegData, converted, err := PrepareImage(imageData, contentType)
	if err != nil {
		return nil, err
	}
	slog.Debug("Sending image to gemini",
		"model", g.opts.Model,
		"bytes", humanize.Bytes(uint64(len(jpegData))),
		"converted", converted,
	)

	parts := []genai.Part{
		genai.Text(imageAnalysisPrompt(g.opts.JPYPerEUR)),
		genai.Blob{MIMEType: "image/jpeg", Data: jpegData},
	}

	resp, err := g.imageModel.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	result, err := parseTranslationJSON(responseText(resp))
	if err != nil {
		return nil, fmt.Errorf("parsing translation: %w", err)
	}
	return result, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
