package lens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/yen-lens/internal/camera"
	"github.com/zombor/yen-lens/internal/capture"
	"github.com/zombor/yen-lens/internal/converter"
	"github.com/zombor/yen-lens/internal/i18n"
)

// stubCamera hands out sessions that always succeed
type stubCamera struct{ err error }

func (c stubCamera) Open(ctx context.Context, cons camera.Constraints) (camera.Session, error) {
	if c.err != nil {
		return nil, c.err
	}
	return stubSession{}, nil
}

type stubSession struct{}

func (stubSession) Play(ctx context.Context) error { return nil }

func (stubSession) Frame(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (stubSession) Release() error { return nil }

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		analyzer    *mockAnalyzer
		service     *Service
		machine     *capture.Machine
		tr          *i18n.Translator
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		analyzer = newMockAnalyzer()
		machine = nil
		tr = i18n.New("es")
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(&mockConverter{rate: converter.DefaultJPYPerEUR}, analyzer,
			ServiceConfig{DB: db, Storage: storage}, fixedID("scan-1"), fixedTime(testNow))
		server := NewServerWithMux(service, machine, tr, auth, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, data
	}

	postJSON := func(path, body string) (*http.Response, []byte) {
		return do(http.MethodPost, path, bytes.NewBufferString(body), "application/json")
	}

	upload := func(filename, partType string, data []byte) (*http.Response, []byte) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		if partType != "" {
			h.Set("Content-Type", partType)
		}
		part, err := w.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())
		return do(http.MethodPost, "/api/scans", &buf, w.FormDataContentType())
	}

	errorMessage := func(body []byte) string {
		var payload map[string]string
		Expect(json.Unmarshal(body, &payload)).To(Succeed())
		return payload["error"]
	}

	Describe("index", func() {
		It("serves the page", func() {
			resp, body := do(http.MethodGet, "/", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/html; charset=utf-8"))
			Expect(string(body)).To(ContainSubstring("Yen Lens"))
		})

		It("rejects other methods", func() {
			resp, _ := do(http.MethodPost, "/", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})

		It("does not serve unknown paths", func() {
			resp, _ := do(http.MethodGet, "/nope", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			resp, _ := do(http.MethodOptions, "/api/convert", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("sets headers on errors", func() {
			resp, _ := postJSON("/api/convert", `{"amount":"x"}`)
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "tabi", Password: "secret"}
		})

		It("rejects missing credentials", func() {
			resp, _ := do(http.MethodGet, "/", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("accepts valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("tabi", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects a wrong password", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("tabi", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("POST /api/convert", func() {
		It("converts a quoted amount", func() {
			resp, body := postJSON("/api/convert", `{"amount":"1000"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var conversion Conversion
			Expect(json.Unmarshal(body, &conversion)).To(Succeed())
			Expect(conversion.AmountEUR).To(Equal(5.88))
			Expect(conversion.Display).To(Equal("€ 5.88"))
		})

		It("converts a numeric amount", func() {
			resp, body := postJSON("/api/convert", `{"amount":1500}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"amount_eur":8.82`))
		})

		DescribeTable("rejects invalid amounts with the localized message",
			func(body string) {
				resp, data := postJSON("/api/convert", body)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(data)).To(Equal(tr.T(i18n.InvalidAmount)))
			},
			Entry("text", `{"amount":"abc"}`),
			Entry("zero", `{"amount":"0"}`),
			Entry("negative", `{"amount":-3}`),
			Entry("missing", `{}`),
		)

		It("rejects a malformed body", func() {
			resp, data := postJSON("/api/convert", `{`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorMessage(data)).To(Equal("Invalid request body"))
		})
	})

	Describe("POST /api/scans", func() {
		It("analyzes the upload", func() {
			resp, body := upload("menu.jpg", "image/jpeg", []byte("jpeg"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var scan Scan
			Expect(json.Unmarshal(body, &scan)).To(Succeed())
			Expect(scan.ID).To(Equal("scan-1"))
			Expect(scan.Source).To(Equal(SourceUpload))
			Expect(scan.Result.Conversions[0].ConvertedEuros).To(Equal(5.88))
		})

		It("guesses the type from the extension", func() {
			resp, _ := upload("menu.png", "", pngBytes())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(analyzer.lastData[:2]).To(Equal([]byte{0xFF, 0xD8}))
		})

		It("rejects an empty file", func() {
			resp, _ := upload("menu.jpg", "image/jpeg", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(analyzer.calls).To(BeZero())
		})

		It("rejects a form without a file", func() {
			var buf bytes.Buffer
			w := multipart.NewWriter(&buf)
			Expect(w.WriteField("other", "x")).To(Succeed())
			Expect(w.Close()).To(Succeed())
			resp, data := do(http.MethodPost, "/api/scans", &buf, w.FormDataContentType())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorMessage(data)).To(Equal("No file provided"))
		})

		When("the analysis fails", func() {
			BeforeEach(func() {
				analyzer.err = errors.New("upstream unavailable")
			})

			It("returns the generic localized failure", func() {
				resp, data := upload("menu.jpg", "image/jpeg", []byte("jpeg"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(errorMessage(data)).To(Equal(tr.T(i18n.AnalysisFailed)))
			})
		})
	})

	Describe("scan history", func() {
		BeforeEach(func() {
			db.scans["a"] = &Scan{ID: "a", ImageFile: "a_menu.jpg"}
			storage.files["a_menu.jpg"] = []byte("img")
		})

		It("lists scans", func() {
			resp, body := do(http.MethodGet, "/api/scans", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var scans []*Scan
			Expect(json.Unmarshal(body, &scans)).To(Succeed())
			Expect(scans).To(HaveLen(1))
		})

		It("gets a scan", func() {
			resp, _ := do(http.MethodGet, "/api/scans/a", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("returns 404 for unknown scans", func() {
			resp, _ := do(http.MethodGet, "/api/scans/missing", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("serves the image", func() {
			resp, body := do(http.MethodGet, "/api/scans/a/image", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			Expect(body).To(Equal([]byte("img")))
		})

		It("deletes a scan", func() {
			resp, _ := do(http.MethodDelete, "/api/scans/a", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.scans).To(BeEmpty())
		})

		It("reports database failures", func() {
			db.listErr = errors.New("boom")
			resp, _ := do(http.MethodGet, "/api/scans", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})

		When("history is disabled", func() {
			JustBeforeEach(func() {
				service.db = nil
			})

			It("returns 404", func() {
				resp, data := do(http.MethodGet, "/api/scans", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				Expect(errorMessage(data)).To(Equal("Scan history is disabled"))
			})
		})
	})

	Describe("camera", func() {
		state := func() capture.Status {
			_, body := do(http.MethodGet, "/api/camera", nil, "")
			var s capture.State
			Expect(json.Unmarshal(body, &s)).To(Succeed())
			return s.Status
		}

		When("no camera is configured", func() {
			It("returns 404", func() {
				resp, _ := do(http.MethodGet, "/api/camera", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp, _ = do(http.MethodPost, "/api/camera/start", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		When("a camera is configured", func() {
			BeforeEach(func() {
				machine = capture.NewMachine(stubCamera{}, analyzer, tr, capture.Options{})
				DeferCleanup(machine.Close)
			})

			It("starts idle", func() {
				Expect(state()).To(Equal(capture.Idle))
			})

			It("runs the capture flow", func() {
				resp, _ := do(http.MethodPost, "/api/camera/start", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Eventually(state).Should(Equal(capture.Active))

				resp, _ = do(http.MethodPost, "/api/camera/start", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))

				resp, _ = do(http.MethodPost, "/api/camera/scan", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Eventually(state).Should(Equal(capture.Success))

				resp, body := do(http.MethodPost, "/api/camera/reset", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(string(body)).To(MatchJSON(`{"status":"idle"}`))
			})

			It("refuses to scan before the camera is active", func() {
				resp, body := do(http.MethodPost, "/api/camera/scan", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
				Expect(string(body)).To(MatchJSON(`{"status":"idle"}`))
			})
		})

		When("the camera is missing", func() {
			BeforeEach(func() {
				machine = capture.NewMachine(stubCamera{err: camera.ErrNotFound}, analyzer, tr, capture.Options{})
			})

			It("reports the localized message", func() {
				do(http.MethodPost, "/api/camera/start", nil, "")
				Eventually(state).Should(Equal(capture.Error))
				_, body := do(http.MethodGet, "/api/camera", nil, "")
				Expect(string(body)).To(ContainSubstring(tr.T(i18n.CameraNotFound)))
			})
		})
	})
})
