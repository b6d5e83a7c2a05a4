package webhook

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	apperrors "github.com/collabary/payments/internal"
	webhookevent "github.com/collabary/payments/internal/core/datamodel/webhookevent"
	"github.com/collabary/payments/internal/processor"
)

func TestWebhook(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Webhook Suite")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = ginkgo.Describe("Handler", func() {
	const secret = "whsec_test"

	var (
		queue   *memQueue
		handler *Handler
	)

	post := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
		if signature != "" {
			req.Header.Set(SignatureHeaderName, signature)
		}
		rec := httptest.NewRecorder()
		handler.Receive(rec, req)
		return rec
	}

	signedBody := func() ([]byte, string) {
		body := []byte(`{"id":"evt-1","type":"intent-succeeded","payload":{"intent_id":"pi_1","status":"succeeded"}}`)
		return body, processor.SignatureHeader(body, time.Now().Unix(), secret)
	}

	ginkgo.BeforeEach(func() {
		queue = newMemQueue()
		handler = NewHandler(queue, secret, testLogger())
	})

	ginkgo.It("should verify, enqueue and acknowledge a signed event", func() {
		body, signature := signedBody()

		rec := post(body, signature)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(queue.enqueued).To(gomega.HaveLen(1))
		gomega.Expect(queue.enqueued[0].EventID).To(gomega.Equal("evt-1"))
		gomega.Expect(queue.enqueued[0].EventType).To(gomega.Equal(webhookevent.TypeIntentSucceeded))
		gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"received":true`))
	})

	ginkgo.It("should reject a tampered body before anything reaches the queue", func() {
		body, signature := signedBody()
		tampered := bytes.Replace(body, []byte("pi_1"), []byte("pi_2"), 1)

		rec := post(tampered, signature)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		gomega.Expect(queue.enqueued).To(gomega.BeEmpty())
	})

	ginkgo.It("should reject a missing signature header", func() {
		body, _ := signedBody()

		rec := post(body, "")

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		gomega.Expect(queue.enqueued).To(gomega.BeEmpty())
	})

	ginkgo.It("should reject a stale signed timestamp", func() {
		body := []byte(`{"id":"evt-1","type":"intent-succeeded","payload":{"intent_id":"pi_1"}}`)
		stale := time.Now().Add(-10 * time.Minute).Unix()

		rec := post(body, processor.SignatureHeader(body, stale, secret))

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		gomega.Expect(queue.enqueued).To(gomega.BeEmpty())
	})

	ginkgo.It("should acknowledge a duplicate delivery without re-enqueueing", func() {
		queue.enqueueErr = apperrors.ErrDuplicateEvent
		body, signature := signedBody()

		rec := post(body, signature)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"received":true`))
	})

	ginkgo.It("should surface a queue outage so the processor retries", func() {
		queue.enqueueErr = errQueueDown
		body, signature := signedBody()

		rec := post(body, signature)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusInternalServerError))
	})
})
