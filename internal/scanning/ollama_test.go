package scanning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server   *ghttp.Server
		client   *Ollama
		captured ollamaChatRequest
	)

	captureRequest := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, &captured)).To(Succeed())
	}

	respondWith := func(content string) http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
			captureRequest,
			ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: content},
				Done:    true,
			}),
		)
	}

	BeforeEach(func() {
		captured = ollamaChatRequest{}
		server = ghttp.NewServer()
		var err error
		client, err = NewOllama(server.URL(), Options{Model: "llava", JPYPerEUR: 170, Timeout: 5 * time.Second})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewOllama", func() {
		It("rejects a non-positive rate", func() {
			_, err := NewOllama(server.URL(), Options{JPYPerEUR: 0})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("RequestTextConversion", func() {
		var (
			text string
			err  error
		)

		JustBeforeEach(func() {
			text, err = client.RequestTextConversion(context.Background(), 1000)
		})

		When("the model answers with a number", func() {
			BeforeEach(func() {
				server.AppendHandlers(respondWith(" 5.88\n"))
			})

			It("returns the trimmed text", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(text).To(Equal("5.88"))
			})

			It("sends the amount and rate in the prompt", func() {
				Expect(captured.Messages).To(HaveLen(1))
				Expect(captured.Messages[0].Content).To(ContainSubstring("Convert 1000 JPY"))
				Expect(captured.Messages[0].Content).To(ContainSubstring("1 EUR = 170 JPY"))
			})

			It("makes exactly one request", func() {
				Expect(server.ReceivedRequests()).To(HaveLen(1))
			})
		})

		When("the API returns an error status", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))
			})

			It("returns the error without retrying", func() {
				Expect(err).To(MatchError(ContainSubstring("status 500")))
				Expect(server.ReceivedRequests()).To(HaveLen(1))
			})
		})
	})

	Describe("RequestImageAnalysis", func() {
		var (
			result *TranslationResult
			err    error
		)

		JustBeforeEach(func() {
			jpegData, encodeErr := EncodeJPEG(testImage())
			Expect(encodeErr).NotTo(HaveOccurred())
			result, err = client.RequestImageAnalysis(context.Background(), jpegData, "image/jpeg")
		})

		When("the model answers with a conforming body", func() {
			BeforeEach(func() {
				server.AppendHandlers(respondWith(`{"fullTranslationSpanish":"Ramen 1500円","currencyConversions":[{"originalJPY":"1500円","amountEUR":8.82}]}`))
			})

			It("returns the parsed result", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Conversions).To(ConsistOf(ConversionEntry{OriginalAmountText: "1500円", ConvertedEuros: 8.82}))
			})

			It("sends the image and the schema", func() {
				Expect(captured.Format).NotTo(BeNil())
				Expect(captured.Messages).To(HaveLen(2))
				Expect(captured.Messages[1].Images).To(HaveLen(1))
			})
		})

		When("the model omits the conversions array", func() {
			BeforeEach(func() {
				server.AppendHandlers(respondWith(`{"fullTranslationSpanish":"Ramen"}`))
			})

			It("fails with a format error", func() {
				Expect(err).To(MatchError(ErrInvalidResponseFormat))
				Expect(result).To(BeNil())
			})
		})
	})
})
