package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zombor/yen-lens/internal/converter"
	"github.com/zombor/yen-lens/internal/i18n"
	"github.com/zombor/yen-lens/internal/lens"
	"github.com/zombor/yen-lens/internal/scanning"
)

func runConvert(ctx context.Context, s *settings, input string, out io.Writer, rich bool) error {
	tr := i18n.New(*s.lang)
	if _, err := converter.ParseAmount(input); err != nil {
		return errors.New(tr.T(i18n.InvalidAmount))
	}

	a, err := newApp(s)
	if err != nil {
		return err
	}
	defer a.Close()

	conversion, err := a.service.Convert(ctx, input)
	if err != nil {
		return fmt.Errorf("converting amount: %w", err)
	}
	fmt.Fprintln(out, renderConversion(tr, conversion, rich))
	return nil
}

func runScan(ctx context.Context, s *settings, path string, out io.Writer, rich bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	a, err := newApp(s)
	if err != nil {
		return err
	}
	defer a.Close()

	scan, err := a.service.AnalyzeImage(ctx, lens.SourceCLI, filepath.Base(path), data, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderResult(i18n.New(*s.lang), scan.Result, rich))
	return nil
}

func runHistory(s *settings, out io.Writer, rich bool) error {
	if *s.historyDB == "" {
		return lens.ErrHistoryDisabled
	}
	db, err := lens.NewBoltDB(*s.historyDB)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer db.Close()

	scans, err := db.ListScans()
	if err != nil {
		return fmt.Errorf("listing scans: %w", err)
	}
	fmt.Fprintln(out, renderHistory(scans, time.Now(), rich))
	return nil
}

func renderConversion(tr *i18n.Translator, c *lens.Conversion, rich bool) string {
	return renderTable(
		[]string{tr.T(i18n.ColumnYen), tr.T(i18n.ColumnEuro)},
		[][]string{{humanize.Commaf(c.AmountJPY), c.Display}},
		[]columnAlignment{alignRight, alignRight},
		rich,
	)
}

// renderResult prints the translation followed by a table of prices
func renderResult(tr *i18n.Translator, result *scanning.TranslationResult, rich bool) string {
	var sb strings.Builder

	sb.WriteString(tr.T(i18n.TranslationHeading))
	sb.WriteString("\n\n")
	if text := strings.TrimSpace(result.TranslatedText); text != "" {
		sb.WriteString(text)
	} else {
		sb.WriteString(tr.T(i18n.NoTextDetected))
	}
	sb.WriteString("\n\n")
	sb.WriteString(tr.T(i18n.PricesHeading))
	sb.WriteString("\n\n")

	if len(result.Conversions) == 0 {
		sb.WriteString(tr.T(i18n.NoPricesDetected))
		return sb.String()
	}
	rows := make([][]string, 0, len(result.Conversions))
	for _, c := range result.Conversions {
		rows = append(rows, []string{c.OriginalAmountText, converter.FormatEUR(c.ConvertedEuros)})
	}
	sb.WriteString(renderTable(
		[]string{tr.T(i18n.ColumnYen), tr.T(i18n.ColumnEuro)},
		rows,
		[]columnAlignment{alignLeft, alignRight},
		rich,
	))
	return sb.String()
}

func renderHistory(scans []*lens.Scan, now time.Time, rich bool) string {
	if len(scans) == 0 {
		return "No scans recorded"
	}
	rows := make([][]string, 0, len(scans))
	for _, scan := range scans {
		prices := 0
		if scan.Result != nil {
			prices = len(scan.Result.Conversions)
		}
		rows = append(rows, []string{
			scan.ID,
			scan.Source,
			scan.Filename,
			fmt.Sprintf("%d", prices),
			humanize.RelTime(scan.CreatedAt, now, "ago", "from now"),
		})
	}
	return renderTable(
		[]string{"ID", "Source", "File", "Prices", "Scanned"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		rich,
	)
}
