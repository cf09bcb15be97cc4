package webhook_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tasklink.app/bridge/common/id"
	"tasklink.app/bridge/internal/http/handler/webhook"
	"tasklink.app/bridge/internal/model"
	"tasklink.app/bridge/internal/service"
	"tasklink.app/bridge/internal/store"
	"tasklink.app/bridge/internal/tracker"
)

const secret = "hunter2"

type fakeDispatcher struct {
	handleFn func(ctx context.Context, eventType string, payload []byte) error
	calls    int
}

func (f *fakeDispatcher) Handle(ctx context.Context, eventType string, payload []byte) error {
	f.calls++
	if f.handleFn != nil {
		return f.handleFn(ctx, eventType, payload)
	}
	return nil
}

type fakeProducer struct {
	enqueued []model.RetryEnvelope
}

func (f *fakeProducer) Enqueue(ctx context.Context, env model.RetryEnvelope) error {
	f.enqueued = append(f.enqueued, env)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type fakeDeliveryStore struct {
	mu        sync.Mutex
	recorded  []model.Delivery
	processed []int64
	failed    []int64
}

func (f *fakeDeliveryStore) Record(ctx context.Context, d *model.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, *d)
	return nil
}

func (f *fakeDeliveryStore) MarkProcessed(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeDeliveryStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeDeliveryStore) GetByID(ctx context.Context, id int64) (*model.Delivery, error) {
	return nil, store.ErrNotFound
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var _ = Describe("GitHubWebhookHandler", func() {
	var (
		dispatcher *fakeDispatcher
		producer   *fakeProducer
		deliveries *fakeDeliveryStore
		router     *gin.Engine
	)

	BeforeEach(func() {
		Expect(id.Init(1)).To(Succeed())

		gin.SetMode(gin.TestMode)
		dispatcher = &fakeDispatcher{}
		producer = &fakeProducer{}
		deliveries = &fakeDeliveryStore{}

		handler := webhook.NewGitHubWebhookHandler(dispatcher, producer, deliveries, secret)
		router = gin.New()
		router.POST("/webhooks/github", handler.HandleEvent)
	})

	deliver := func(body []byte, mutate func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
		req.Header.Set("X-GitHub-Event", "pull_request")
		req.Header.Set("X-GitHub-Delivery", "delivery-1")
		req.Header.Set("X-Hub-Signature-256", sign(body))
		if mutate != nil {
			mutate(req)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	body := []byte(`{"action":"opened","repository":{"full_name":"acme/widgets"},"pull_request":{"number":7}}`)

	It("processes a valid delivery and records it", func() {
		rec := deliver(body, nil)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(dispatcher.calls).To(Equal(1))
		Expect(deliveries.recorded).To(HaveLen(1))
		Expect(deliveries.recorded[0].DeliveryID).To(Equal("delivery-1"))
		Expect(deliveries.processed).To(HaveLen(1))
	})

	It("rejects a missing event header", func() {
		rec := deliver(body, func(r *http.Request) {
			r.Header.Del("X-GitHub-Event")
		})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(dispatcher.calls).To(BeZero())
	})

	It("rejects a missing delivery header", func() {
		rec := deliver(body, func(r *http.Request) {
			r.Header.Del("X-GitHub-Delivery")
		})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects a missing signature", func() {
		rec := deliver(body, func(r *http.Request) {
			r.Header.Del("X-Hub-Signature-256")
		})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(dispatcher.calls).To(BeZero())
	})

	It("rejects a signature computed with the wrong secret", func() {
		mac := hmac.New(sha256.New, []byte("wrong"))
		mac.Write(body)
		bad := "sha256=" + hex.EncodeToString(mac.Sum(nil))

		rec := deliver(body, func(r *http.Request) {
			r.Header.Set("X-Hub-Signature-256", bad)
		})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(dispatcher.calls).To(BeZero())
	})

	It("rejects a signature over a different body", func() {
		rec := deliver(body, func(r *http.Request) {
			r.Header.Set("X-Hub-Signature-256", sign([]byte("other body")))
		})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("acknowledges unknown event types without retry", func() {
		dispatcher.handleFn = func(ctx context.Context, eventType string, payload []byte) error {
			return fmt.Errorf("%q: %w", eventType, service.ErrUnknownEvent)
		}

		rec := deliver(body, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("not supported"))
		Expect(producer.enqueued).To(BeEmpty())
	})

	It("acknowledges terminal failures without retry", func() {
		dispatcher.handleFn = func(ctx context.Context, eventType string, payload []byte) error {
			return fmt.Errorf("%w: bad payload", service.ErrValidation)
		}

		rec := deliver(body, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(producer.enqueued).To(BeEmpty())
		Expect(deliveries.failed).To(HaveLen(1))
	})

	It("enqueues a retry envelope and returns 500 on retryable failures", func() {
		dispatcher.handleFn = func(ctx context.Context, eventType string, payload []byte) error {
			return fmt.Errorf("fetching: %w", tracker.ErrUnavailable)
		}

		rec := deliver(body, nil)
		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(producer.enqueued).To(HaveLen(1))

		env := producer.enqueued[0]
		Expect(env.EventType).To(Equal("pull_request"))
		Expect(env.DeliveryID).To(Equal("delivery-1"))
		Expect(env.Payload).To(Equal(body))
		Expect(env.Attempt).To(Equal(1))
	})
})
