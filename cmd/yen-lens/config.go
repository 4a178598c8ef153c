package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/yen-lens/internal/converter"
)

// settings are the flags shared by every command
type settings struct {
	rate        *float64
	timeout     *time.Duration
	lang        *string
	scanner     *string
	geminiKey   *string
	geminiModel *string
	ollamaURL   *string
	ollamaModel *string
	historyDB   *string
	storage     *string
	debug       *bool
}

func registerSettings(fs *ff.FlagSet) *settings {
	fs.StringLong("config", "", "TOML config file")
	return &settings{
		rate:        fs.Float64Long("rate", converter.DefaultJPYPerEUR, "Fallback exchange rate in JPY per EUR"),
		timeout:     fs.DurationLong("timeout", 30*time.Second, "Timeout for each AI request"),
		lang:        fs.StringLong("lang", "es", "Display language: 'es' or 'en'"),
		scanner:     fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'"),
		geminiKey:   fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel: fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name"),
		ollamaURL:   fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel: fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl, llama3.2-vision)"),
		historyDB:   fs.StringLong("history-db", "", "Scan history database file (history is off when empty)"),
		storage:     fs.StringLong("storage", "./scans", "Directory for scanned images when history is on"),
		debug:       fs.BoolLong("debug", "Enable debug logging"),
	}
}

// cameraSettings select and drive the local capture device
type cameraSettings struct {
	device  *string
	exact   *bool
	ffmpeg  *string
	lockDir *string
}

func registerCameraSettings(fs *ff.FlagSet) *cameraSettings {
	return &cameraSettings{
		device:  fs.StringLong("camera-device", "", "Video device to use instead of discovery (e.g., /dev/video0)"),
		exact:   fs.BoolLong("camera-exact-facing", "Fail instead of falling back when no rear camera exists"),
		ffmpeg:  fs.StringLong("ffmpeg", "ffmpeg", "ffmpeg binary used to grab frames"),
		lockDir: fs.StringLong("camera-lock-dir", os.TempDir(), "Directory for camera lock files"),
	}
}

// parseTOML feeds a TOML document to ff. Tables flatten into dashed flag
// names, so [gemini] key = "..." sets --gemini-key. Arrays set the flag once
// per element.
func parseTOML(r io.Reader, set func(name, value string) error) error {
	var doc map[string]any
	if err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return setFlattened("", doc, set)
}

func setFlattened(prefix string, table map[string]any, set func(name, value string) error) error {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := strings.ReplaceAll(k, "_", "-")
		if prefix != "" {
			name = prefix + "-" + name
		}
		switch v := table[k].(type) {
		case map[string]any:
			if err := setFlattened(name, v, set); err != nil {
				return err
			}
		case []any:
			for _, item := range v {
				if err := set(name, tomlValue(item)); err != nil {
					return err
				}
			}
		default:
			if err := set(name, tomlValue(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

func tomlValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
