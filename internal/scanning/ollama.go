package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements the Client interface using a local Ollama server
type Ollama struct {
	baseURL string
	client  *http.Client
	opts    Options
}

// NewOllama creates a new Ollama Client instance.
// The model must accept images (llava, qwen2-vl, llama3.2-vision) and follow a JSON schema format.
func NewOllama(baseURL string, opts Options) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "llava"
	}
	if opts.JPYPerEUR <= 0 {
		return nil, fmt.Errorf("exchange rate must be positive, got %v", opts.JPYPerEUR)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second // vision models are slow on local hardware
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		opts:    opts,
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   any             `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// RequestTextConversion asks the model for a bare numeric conversion
func (o *Ollama) RequestTextConversion(ctx context.Context, amountJPY float64) (string, error) {
	reqBody := ollamaChatRequest{
		Model:   o.opts.Model,
		Options: map[string]any{"temperature": 0},
		Messages: []ollamaMessage{
			{Role: "user", Content: textConversionPrompt(amountJPY, o.opts.JPYPerEUR)},
		},
	}

	text, err := o.chat(ctx, reqBody)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("no response from ollama")
	}
	return text, nil
}

// RequestImageAnalysis sends the image with a JSON schema format and validates the reply
func (o *Ollama) RequestImageAnalysis(ctx context.Context, imageData []byte, contentType string) (*TranslationResult, error) {
	jpegData, _, err := PrepareImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	reqBody := ollamaChatRequest{
		Model:  o.opts.Model,
		Format: translationJSONSchema(),
		Messages: []ollamaMessage{
			{Role: "system", Content: systemInstruction},
			{
				Role:    "user",
				Content: imageAnalysisPrompt(o.opts.JPYPerEUR),
				Images:  []string{base64.StdEncoding.EncodeToString(jpegData)},
			},
		},
	}

	text, err := o.chat(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	result, err := parseTranslationJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parsing translation: %w", err)
	}
	return result, nil
}

func (o *Ollama) chat(ctx context.Context, reqBody ollamaChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.timeout())
	defer cancel()

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return strings.TrimSpace(chatResp.Message.Content), nil
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
