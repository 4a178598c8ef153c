package lens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/zombor/yen-lens/internal/capture"
	"github.com/zombor/yen-lens/internal/converter"
	"github.com/zombor/yen-lens/internal/scanning"
)

var (
	// ErrHistoryDisabled is returned by history operations when no database is configured
	ErrHistoryDisabled = errors.New("scan history is disabled")
	// ErrInvalidImage is returned when an upload cannot be turned into a JPEG
	ErrInvalidImage = errors.New("unsupported or unreadable image")
)

// IDGenerator generates unique IDs for scans
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now()
}

// AmountConverter converts a validated Yen amount to Euros
type AmountConverter interface {
	Convert(ctx context.Context, amountJPY float64) (float64, error)
	Rate() float64
}

// Analyzer translates the text in a JPEG and converts its prices
type Analyzer interface {
	RequestImageAnalysis(ctx context.Context, imageData []byte, contentType string) (*scanning.TranslationResult, error)
}

// Service is the application layer shared by HTTP, Telegram and the CLI
type Service struct {
	converter   AmountConverter
	analyzer    Analyzer
	db          DB
	storage     Storage
	timeout     time.Duration
	idGenerator IDGenerator
	timeSource  TimeSource
}

// ServiceConfig holds the optional parts of a Service. A nil DB disables
// history; a nil Storage keeps history without images.
type ServiceConfig struct {
	DB      DB
	Storage Storage
	Timeout time.Duration
}

// NewService creates a Service with UUID IDs and the system clock
func NewService(conv AmountConverter, analyzer Analyzer, cfg ServiceConfig) *Service {
	return NewServiceWithDeps(conv, analyzer, cfg, uuidGenerator{}, systemTime{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(conv AmountConverter, analyzer Analyzer, cfg ServiceConfig, idGen IDGenerator, timeSrc TimeSource) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = scanning.DefaultTimeout
	}
	return &Service{
		converter:   conv,
		analyzer:    analyzer,
		db:          cfg.DB,
		storage:     cfg.Storage,
		timeout:     cfg.Timeout,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// HistoryEnabled reports whether scans are recorded
func (s *Service) HistoryEnabled() bool {
	return s.db != nil
}

// Convert parses a user-entered amount and converts it
func (s *Service) Convert(ctx context.Context, input string) (*Conversion, error) {
	amount, err := converter.ParseAmount(input)
	if err != nil {
		return nil, err
	}
	eur, err := s.converter.Convert(ctx, amount)
	if err != nil {
		return nil, err
	}
	return &Conversion{
		AmountJPY: amount,
		AmountEUR: converter.Round2(eur),
		Display:   converter.FormatEUR(eur),
		Rate:      s.converter.Rate(),
	}, nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips characters that do not belong in a storage key.
// Japanese names are kept.
func sanitizeFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))

	const maxRunes = 50
	if utf8.RuneCountInString(base) > maxRunes {
		base = string([]rune(base)[:maxRunes])
	}
	if base == "" {
		base = "scan"
	}
	return base + ".jpg"
}

// AnalyzeImage normalizes an image to JPEG, analyzes it and records the scan
// when history is enabled
func (s *Service) AnalyzeImage(ctx context.Context, source, filename string, data []byte, contentType string) (*Scan, error) {
	jpegData, converted, err := scanning.PrepareImage(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if converted {
		slog.Info("Converted image to JPEG",
			"content_type", contentType,
			"from", humanize.Bytes(uint64(len(data))),
			"to", humanize.Bytes(uint64(len(jpegData))),
		)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	var imageFile string
	if s.db != nil && s.storage != nil {
		imageFile, err = s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), jpegData)
		if err != nil {
			return nil, fmt.Errorf("saving image: %w", err)
		}
	}

	result, err := s.analyze(ctx, jpegData)
	if err != nil {
		slog.Error("Failed to analyze image",
			"source", source,
			"filename", filename,
			"content_type", contentType,
			"size", humanize.Bytes(uint64(len(data))),
			"error", err,
		)
		s.discardImage(imageFile)
		return nil, fmt.Errorf("analyzing image: %w", err)
	}

	scan := &Scan{
		ID:        id,
		Source:    source,
		Filename:  filename,
		ImageFile: imageFile,
		Result:    result,
		CreatedAt: now,
	}
	if s.db == nil {
		return scan, nil
	}
	if err := s.db.SaveScan(scan); err != nil {
		s.discardImage(imageFile)
		return nil, fmt.Errorf("saving scan: %w", err)
	}
	return scan, nil
}

func (s *Service) analyze(ctx context.Context, jpegData []byte) (*scanning.TranslationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.analyzer.RequestImageAnalysis(ctx, jpegData, "image/jpeg")
}

func (s *Service) discardImage(imageFile string) {
	if imageFile == "" {
		return
	}
	if err := s.storage.Delete(imageFile); err != nil {
		slog.Warn("Failed to delete image", "filename", imageFile, "error", err)
	}
}

// GetScan retrieves a scan by ID
func (s *Service) GetScan(id string) (*Scan, error) {
	if s.db == nil {
		return nil, ErrHistoryDisabled
	}
	scan, err := s.db.GetScan(id)
	if err != nil {
		return nil, fmt.Errorf("getting scan: %w", err)
	}
	return scan, nil
}

// ListScans returns the scan history, newest first
func (s *Service) ListScans() ([]*Scan, error) {
	if s.db == nil {
		return nil, ErrHistoryDisabled
	}
	scans, err := s.db.ListScans()
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return scans, nil
}

// GetScanImage returns the stored JPEG of a scan
func (s *Service) GetScanImage(id string) ([]byte, error) {
	scan, err := s.GetScan(id)
	if err != nil {
		return nil, err
	}
	if scan.ImageFile == "" || s.storage == nil {
		return nil, fmt.Errorf("%w: %s has no image", ErrScanNotFound, id)
	}
	data, err := s.storage.Get(scan.ImageFile)
	if err != nil {
		return nil, fmt.Errorf("getting scan image: %w", err)
	}
	return data, nil
}

// DeleteScan removes a scan and its image
func (s *Service) DeleteScan(id string) error {
	scan, err := s.GetScan(id)
	if err != nil {
		return err
	}
	if scan.ImageFile != "" && s.storage != nil {
		if err := s.storage.Delete(scan.ImageFile); err != nil {
			// The record is still removed
			slog.Warn("Failed to delete image", "filename", scan.ImageFile, "error", err)
		}
	}
	if err := s.db.DeleteScan(id); err != nil {
		return fmt.Errorf("deleting scan: %w", err)
	}
	return nil
}

// cameraAnalyzer records camera stills in the history
type cameraAnalyzer struct {
	service *Service
}

func (c cameraAnalyzer) RequestImageAnalysis(ctx context.Context, imageData []byte, contentType string) (*scanning.TranslationResult, error) {
	scan, err := c.service.AnalyzeImage(ctx, SourceCamera, "camera.jpg", imageData, contentType)
	if err != nil {
		return nil, err
	}
	return scan.Result, nil
}

// CameraAnalyzer returns the analyzer used by the capture flow
func (s *Service) CameraAnalyzer() capture.Analyzer {
	return cameraAnalyzer{service: s}
}
