// Package telegram is the chat front end: send a Yen amount to get Euros back,
// or a photo of Japanese text to get it translated with its prices converted.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zombor/yen-lens/internal/converter"
	"github.com/zombor/yen-lens/internal/i18n"
	"github.com/zombor/yen-lens/internal/lens"
	"github.com/zombor/yen-lens/internal/scanning"
)

// maxPhotoSize matches the HTTP upload limit
const maxPhotoSize = 50 << 20

// errPhotoTooLarge rejects downloads over the size limit instead of truncating them
var errPhotoTooLarge = errors.New("photo exceeds the size limit")

// API is the part of tgbotapi.BotAPI the bot uses
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Service is the application layer the bot talks to
type Service interface {
	Convert(ctx context.Context, input string) (*lens.Conversion, error)
	AnalyzeImage(ctx context.Context, source, filename string, data []byte, contentType string) (*lens.Scan, error)
}

// Bot answers chat messages
type Bot struct {
	api     API
	service Service
	tr      *i18n.Translator
	client  *http.Client
	logger  *slog.Logger

	maxDownload int64
}

// New creates a Bot
func New(api API, service Service, tr *i18n.Translator, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:     api,
		service: service,
		tr:      tr,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With("component", "telegram"),

		maxDownload: maxPhotoSize,
	}
}

// Run long-polls for updates until ctx is cancelled. Updates are handled one
// at a time.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := b.api.GetUpdatesChan(cfg)
	b.logger.Info("Telegram bot polling")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Telegram bot stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate dispatches a single update
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(msg)
	case len(msg.Photo) > 0:
		// Telegram sends several sizes, largest last
		b.handleImage(ctx, msg, msg.Photo[len(msg.Photo)-1].FileID, "")
	case msg.Document != nil && isImageDocument(msg.Document):
		b.handleImage(ctx, msg, msg.Document.FileID, msg.Document.MimeType)
	case strings.TrimSpace(msg.Text) != "":
		b.handleText(ctx, msg)
	}
}

func isImageDocument(doc *tgbotapi.Document) bool {
	return strings.HasPrefix(doc.MimeType, "image/") || doc.MimeType == "application/pdf"
}

// handleCommand answers /start, /help and anything unknown with the usage text
func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	b.logger.Debug("Command received", "chat_id", msg.Chat.ID, "command", msg.Command())
	b.reply(msg, b.tr.T(i18n.BotHelp))
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	conversion, err := b.service.Convert(ctx, msg.Text)
	if err != nil {
		if !errors.Is(err, converter.ErrInvalidAmount) {
			b.logger.Error("Conversion failed", "chat_id", msg.Chat.ID, "error", err)
		}
		b.reply(msg, b.tr.T(i18n.InvalidAmount))
		return
	}
	b.reply(msg, b.tr.T(i18n.ConversionReply, humanize.Commaf(conversion.AmountJPY), conversion.Display))
}

func (b *Bot) handleImage(ctx context.Context, msg *tgbotapi.Message, fileID, contentType string) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Failed to send chat action", "error", err)
	}

	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		b.logger.Error("Failed to resolve file", "chat_id", msg.Chat.ID, "error", err)
		b.reply(msg, b.tr.T(i18n.AnalysisFailed))
		return
	}
	data, err := b.download(ctx, url)
	if err != nil {
		b.logger.Error("Failed to download photo", "chat_id", msg.Chat.ID, "error", err)
		b.reply(msg, b.tr.T(i18n.AnalysisFailed))
		return
	}

	scan, err := b.service.AnalyzeImage(ctx, lens.SourceTelegram, path.Base(url), data, contentType)
	if err != nil {
		b.logger.Error("Failed to analyze photo", "chat_id", msg.Chat.ID, "error", err)
		b.reply(msg, b.tr.T(i18n.AnalysisFailed))
		return
	}
	b.reply(msg, formatResult(b.tr, scan.Result))
}

func (b *Bot) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if int64(len(data)) > b.maxDownload {
		return nil, fmt.Errorf("%w: more than %s", errPhotoTooLarge, humanize.Bytes(uint64(b.maxDownload)))
	}
	return data, nil
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.logger.Error("Failed to send message", "chat_id", msg.Chat.ID, "error", err)
	}
}

// formatResult renders a translation as plain text, one line per price
func formatResult(tr *i18n.Translator, result *scanning.TranslationResult) string {
	var sb strings.Builder

	sb.WriteString(tr.T(i18n.TranslationHeading))
	sb.WriteString("\n")
	if text := strings.TrimSpace(result.TranslatedText); text != "" {
		sb.WriteString(text)
	} else {
		sb.WriteString(tr.T(i18n.NoTextDetected))
	}

	sb.WriteString("\n\n")
	sb.WriteString(tr.T(i18n.PricesHeading))
	sb.WriteString("\n")
	if len(result.Conversions) == 0 {
		sb.WriteString(tr.T(i18n.NoPricesDetected))
		return sb.String()
	}
	for i, c := range result.Conversions {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s → %s", c.OriginalAmountText, converter.FormatEUR(c.ConvertedEuros))
	}
	return sb.String()
}
