package lens

import (
	"time"

	"github.com/zombor/yen-lens/internal/scanning"
)

// Where a scan came from
const (
	SourceUpload   = "upload"
	SourceTelegram = "telegram"
	SourceCamera   = "camera"
	SourceCLI      = "cli"
)

// Scan is one analyzed image kept in the history
type Scan struct {
	ID        string                      `json:"id"`
	Source    string                      `json:"source"`
	Filename  string                      `json:"filename,omitempty"`
	ImageFile string                      `json:"image_file,omitempty"` // JPEG in storage
	Result    *scanning.TranslationResult `json:"result"`
	CreatedAt time.Time                   `json:"created_at"`
}

// Conversion is the answer to a manual Yen amount
type Conversion struct {
	AmountJPY float64 `json:"amount_jpy"`
	AmountEUR float64 `json:"amount_eur"` // rounded to cents
	Display   string  `json:"display"`
	Rate      float64 `json:"rate"` // JPY per EUR used by the fallback
}
