package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// DefaultJPYPerEUR is the published rate at design time: 170 JPY = 1 EUR
const DefaultJPYPerEUR = 170.0

// ErrInvalidAmount is returned for non-numeric or non-positive input; no request is made
var ErrInvalidAmount = errors.New("amount must be a positive number")

// TextConverter is the part of the API client the converter needs
type TextConverter interface {
	RequestTextConversion(ctx context.Context, amountJPY float64) (string, error)
}

// Converter turns Yen amounts into Euros, falling back to the fixed rate
// whenever the service cannot answer
type Converter struct {
	client TextConverter
	rate   float64
	logger *slog.Logger
}

// New creates a Converter. rate is the number of Yen per Euro.
func New(client TextConverter, rate float64, logger *slog.Logger) (*Converter, error) {
	if !isPositive(rate) {
		return nil, fmt.Errorf("exchange rate must be positive, got %v", rate)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{client: client, rate: rate, logger: logger}, nil
}

// Rate returns the configured number of Yen per Euro
func (c *Converter) Rate() float64 {
	return c.rate
}

// Convert returns amountJPY in Euros. It issues exactly one request; on any
// failure the result is amountJPY / rate and the error is nil.
func (c *Converter) Convert(ctx context.Context, amountJPY float64) (float64, error) {
	if !isPositive(amountJPY) {
		return 0, ErrInvalidAmount
	}

	text, err := c.client.RequestTextConversion(ctx, amountJPY)
	if err != nil {
		c.logger.Warn("Conversion request failed, using fixed rate", "amount_jpy", amountJPY, "error", err)
		return c.Fallback(amountJPY), nil
	}

	eur, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || !isPositive(eur) {
		c.logger.Warn("Conversion response unusable, using fixed rate", "amount_jpy", amountJPY, "response", text)
		return c.Fallback(amountJPY), nil
	}
	return eur, nil
}

// Fallback computes the conversion locally
func (c *Converter) Fallback(amountJPY float64) float64 {
	return amountJPY / c.rate
}

func isPositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// ParseAmount reads a user-entered Yen amount. Full-width digits and the
// ¥/円 markers found on Japanese price tags are accepted.
func ParseAmount(input string) (float64, error) {
	s := width.Narrow.String(strings.TrimSpace(input))
	s = strings.NewReplacer("¥", "", "￥", "", "円", "", "JPY", "", "jpy", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil || !isPositive(amount) {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

// Round2 rounds to two decimals for display
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatEUR renders a Euro amount the way it is displayed
func FormatEUR(v float64) string {
	return fmt.Sprintf("€ %.2f", Round2(v))
}
