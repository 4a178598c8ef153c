package lens

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/yen-lens/internal/scanning"
)

var _ = Describe("BoltDB", func() {
	var (
		dbPath string
		db     *BoltDB
	)

	newScan := func(id string, at time.Time) *Scan {
		return &Scan{
			ID:        id,
			Source:    SourceUpload,
			Filename:  "menu.jpg",
			ImageFile: id + "_menu.jpg",
			Result: &scanning.TranslationResult{
				TranslatedText: "Menú del día",
				Conversions: []scanning.ConversionEntry{
					{OriginalAmountText: "850円", ConvertedEuros: 5},
				},
			},
			CreatedAt: at,
		}
	}

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveScan and GetScan", func() {
		It("round-trips a scan", func() {
			saved := newScan("a", time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC))
			Expect(db.SaveScan(saved)).To(Succeed())

			scan, err := db.GetScan("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(scan.Result).To(Equal(saved.Result))
			Expect(scan.CreatedAt.Equal(saved.CreatedAt)).To(BeTrue())
		})

		It("replaces an existing scan", func() {
			first := newScan("a", time.Now())
			Expect(db.SaveScan(first)).To(Succeed())
			second := newScan("a", time.Now())
			second.Source = SourceCamera
			Expect(db.SaveScan(second)).To(Succeed())

			scan, err := db.GetScan("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(scan.Source).To(Equal(SourceCamera))
		})

		It("reports unknown IDs", func() {
			_, err := db.GetScan("missing")
			Expect(err).To(MatchError(ErrScanNotFound))
		})
	})

	Describe("ListScans", func() {
		When("the bucket is empty", func() {
			It("returns an empty list", func() {
				scans, err := db.ListScans()
				Expect(err).NotTo(HaveOccurred())
				Expect(scans).NotTo(BeNil())
				Expect(scans).To(BeEmpty())
			})
		})

		When("scans exist", func() {
			BeforeEach(func() {
				base := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
				Expect(db.SaveScan(newScan("old", base))).To(Succeed())
				Expect(db.SaveScan(newScan("new", base.Add(time.Hour)))).To(Succeed())
				Expect(db.SaveScan(newScan("mid", base.Add(time.Minute)))).To(Succeed())
			})

			It("returns them newest first", func() {
				scans, err := db.ListScans()
				Expect(err).NotTo(HaveOccurred())
				ids := make([]string, 0, len(scans))
				for _, s := range scans {
					ids = append(ids, s.ID)
				}
				Expect(ids).To(Equal([]string{"new", "mid", "old"}))
			})
		})
	})

	Describe("DeleteScan", func() {
		BeforeEach(func() {
			Expect(db.SaveScan(newScan("a", time.Now()))).To(Succeed())
		})

		It("removes the scan", func() {
			Expect(db.DeleteScan("a")).To(Succeed())
			_, err := db.GetScan("a")
			Expect(err).To(MatchError(ErrScanNotFound))
		})

		It("reports unknown IDs", func() {
			Expect(db.DeleteScan("missing")).To(MatchError(ErrScanNotFound))
		})
	})

	It("persists across reopen", func() {
		Expect(db.SaveScan(newScan("a", time.Now()))).To(Succeed())
		Expect(db.Close()).To(Succeed())

		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.GetScan("a")
		Expect(err).NotTo(HaveOccurred())
	})
})
