package main

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/yen-lens/internal/i18n"
	"github.com/zombor/yen-lens/internal/lens"
	"github.com/zombor/yen-lens/internal/scanning"
)

var _ = Describe("renderConversion", func() {
	It("shows the amount with separators next to the Euro display", func() {
		out := renderConversion(i18n.New("es"), &lens.Conversion{AmountJPY: 12500, AmountEUR: 73.53, Display: "€ 73.53"}, false)
		Expect(out).To(ContainSubstring("12,500"))
		Expect(out).To(ContainSubstring("€ 73.53"))
	})
})

var _ = Describe("renderHistory", func() {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	It("says so when nothing is recorded", func() {
		Expect(renderHistory(nil, now, false)).To(Equal("No scans recorded"))
	})

	It("lists each scan with its price count and age", func() {
		out := renderHistory([]*lens.Scan{
			{
				ID:       "scan-1",
				Source:   lens.SourceTelegram,
				Filename: "file_1.jpg",
				Result: &scanning.TranslationResult{Conversions: []scanning.ConversionEntry{
					{OriginalAmountText: "900円", ConvertedEuros: 5.29},
					{OriginalAmountText: "450円", ConvertedEuros: 2.65},
				}},
				CreatedAt: now.Add(-2 * time.Hour),
			},
			{ID: "scan-2", Source: lens.SourceCamera, CreatedAt: now.Add(-3 * 24 * time.Hour)},
		}, now, false)

		Expect(out).To(ContainSubstring("scan-1"))
		Expect(out).To(ContainSubstring("telegram"))
		Expect(out).To(ContainSubstring("2 hours ago"))
		Expect(out).To(ContainSubstring("3 days ago"))
		Expect(out).To(MatchRegexp(`scan-1\s+telegram\s+file_1\.jpg\s+2\s`))
	})
})
