package scanning

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds every outbound request when Options.Timeout is unset
const DefaultTimeout = 30 * time.Second

// ErrInvalidResponseFormat is returned when the service body does not match the declared schema
var ErrInvalidResponseFormat = errors.New("the API returned an invalid response format")

// ConversionEntry is one detected price and its Euro equivalent
type ConversionEntry struct {
	OriginalAmountText string  `json:"originalJPY"`
	ConvertedEuros     float64 `json:"amountEUR"`
}

// TranslationResult is the full output of an image analysis request
type TranslationResult struct {
	TranslatedText string            `json:"fullTranslationSpanish"`
	Conversions    []ConversionEntry `json:"currencyConversions"`
}

// Options configures a Client backend
type Options struct {
	Model     string
	JPYPerEUR float64
	Timeout   time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Client defines the operations the application needs from the hosted AI service
type Client interface {
	// RequestTextConversion asks for amountJPY in Euros and returns the bare numeric text
	RequestTextConversion(ctx context.Context, amountJPY float64) (string, error)
	// RequestImageAnalysis translates the Japanese text in an image and converts every Yen price found
	RequestImageAnalysis(ctx context.Context, imageData []byte, contentType string) (*TranslationResult, error)
	// Close closes the client and releases resources
	Close() error
}
