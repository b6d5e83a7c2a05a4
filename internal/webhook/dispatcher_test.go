package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	webhookevent "github.com/collabary/payments/internal/core/datamodel/webhookevent"
)

var errQueueDown = errors.New("queue unavailable")

type retryCall struct {
	id            int64
	lastError     string
	nextAttemptAt time.Time
}

// memQueue is a locked in-memory Queue; the dispatcher drives it from
// multiple worker goroutines.
type memQueue struct {
	mu         sync.Mutex
	enqueued   []*webhookevent.Event
	enqueueErr error
	processed  []int64
	retried    []retryCall
	dead       []int64
	reclaims   []time.Duration
}

func newMemQueue() *memQueue {
	return &memQueue{}
}

func (q *memQueue) Enqueue(event *webhookevent.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, event)
	return nil
}

func (q *memQueue) Dequeue(limit int) ([]*webhookevent.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.enqueued) == 0 {
		return nil, nil
	}
	if limit > len(q.enqueued) {
		limit = len(q.enqueued)
	}
	batch := q.enqueued[:limit]
	q.enqueued = q.enqueued[limit:]
	return batch, nil
}

func (q *memQueue) MarkProcessed(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processed = append(q.processed, id)
	return nil
}

func (q *memQueue) Retry(id int64, lastError string, nextAttemptAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, retryCall{id: id, lastError: lastError, nextAttemptAt: nextAttemptAt})
	return nil
}

func (q *memQueue) MarkDead(id int64, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, id)
	return nil
}

func (q *memQueue) ReclaimStale(olderThan time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reclaims = append(q.reclaims, olderThan)
	return 0, nil
}

func (q *memQueue) reclaimCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reclaims)
}

type recordingEscrowEvents struct {
	mu        sync.Mutex
	succeeded []string
	failed    []string
	refunded  []string
	reasons   []string
	err       error
}

func (m *recordingEscrowEvents) HandleIntentSucceeded(ctx context.Context, intentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.succeeded = append(m.succeeded, intentRef)
	return m.err
}

func (m *recordingEscrowEvents) HandleIntentFailed(ctx context.Context, intentRef, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, intentRef)
	m.reasons = append(m.reasons, reason)
	return m.err
}

func (m *recordingEscrowEvents) HandleChargeRefunded(ctx context.Context, intentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunded = append(m.refunded, intentRef)
	return m.err
}

func (m *recordingEscrowEvents) succeededCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.succeeded)
}

type recordingPayoutEvents struct {
	mu      sync.Mutex
	paid    []string
	failed  []string
	reasons []string
	err     error
}

func (m *recordingPayoutEvents) HandlePayoutPaid(ctx context.Context, transferRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paid = append(m.paid, transferRef)
	return m.err
}

func (m *recordingPayoutEvents) HandlePayoutFailed(ctx context.Context, transferRef, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, transferRef)
	m.reasons = append(m.reasons, reason)
	return m.err
}

func (m *recordingPayoutEvents) paidCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paid)
}

var _ = ginkgo.Describe("Dispatcher", func() {
	var (
		ctx        context.Context
		queue      *memQueue
		escrowEvts *recordingEscrowEvents
		payoutEvts *recordingPayoutEvents
		dispatcher *Dispatcher
	)

	intentEvent := func(eventType string) *webhookevent.Event {
		return &webhookevent.Event{
			ID:        1,
			EventID:   "evt-1",
			EventType: eventType,
			Payload:   json.RawMessage(`{"intent_id":"pi_1","status":"failed","failure_reason":"card_declined"}`),
		}
	}

	transferEvent := func(eventType string) *webhookevent.Event {
		return &webhookevent.Event{
			ID:        2,
			EventID:   "evt-2",
			EventType: eventType,
			Payload:   json.RawMessage(`{"transfer_id":"tr_1","status":"failed","failure_reason":"account_closed"}`),
		}
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		queue = newMemQueue()
		escrowEvts = &recordingEscrowEvents{}
		payoutEvts = &recordingPayoutEvents{}
		dispatcher = NewDispatcher(queue, escrowEvts, payoutEvts, DispatcherConfig{
			MaxAttempts:  3,
			RetryBackoff: 30 * time.Second,
		}, testLogger())
	})

	ginkgo.Describe("Process", func() {
		ginkgo.It("should route intent-succeeded to the escrow handler", func() {
			err := dispatcher.Process(ctx, intentEvent(webhookevent.TypeIntentSucceeded))

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(escrowEvts.succeeded).To(gomega.Equal([]string{"pi_1"}))
		})

		ginkgo.It("should route intent-failed with the failure reason", func() {
			err := dispatcher.Process(ctx, intentEvent(webhookevent.TypeIntentFailed))

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(escrowEvts.failed).To(gomega.Equal([]string{"pi_1"}))
			gomega.Expect(escrowEvts.reasons).To(gomega.Equal([]string{"card_declined"}))
		})

		ginkgo.It("should route charge-refunded to the escrow handler", func() {
			err := dispatcher.Process(ctx, intentEvent(webhookevent.TypeChargeRefunded))

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(escrowEvts.refunded).To(gomega.Equal([]string{"pi_1"}))
		})

		ginkgo.It("should route payout-paid to the payout handler", func() {
			err := dispatcher.Process(ctx, transferEvent(webhookevent.TypePayoutPaid))

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(payoutEvts.paid).To(gomega.Equal([]string{"tr_1"}))
		})

		ginkgo.It("should route payout-failed with the failure reason", func() {
			err := dispatcher.Process(ctx, transferEvent(webhookevent.TypePayoutFailed))

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(payoutEvts.failed).To(gomega.Equal([]string{"tr_1"}))
			gomega.Expect(payoutEvts.reasons).To(gomega.Equal([]string{"account_closed"}))
		})

		ginkgo.It("should reject an unknown event type", func() {
			event := intentEvent("invoice-created")

			err := dispatcher.Process(ctx, event)

			gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("unknown event type")))
		})

		ginkgo.It("should reject a payload missing its reference", func() {
			event := intentEvent(webhookevent.TypeIntentSucceeded)
			event.Payload = json.RawMessage(`{"status":"succeeded"}`)

			err := dispatcher.Process(ctx, event)

			gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("missing intent_id")))
			gomega.Expect(escrowEvts.succeeded).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("handle", func() {
		ginkgo.It("should retire the event after a successful dispatch", func() {
			dispatcher.handle(ctx, intentEvent(webhookevent.TypeIntentSucceeded))

			gomega.Expect(queue.processed).To(gomega.Equal([]int64{1}))
			gomega.Expect(queue.retried).To(gomega.BeEmpty())
		})

		ginkgo.It("should requeue a failed event with the base backoff", func() {
			escrowEvts.err = errors.New("payment not found for intent")
			before := time.Now().UTC()

			dispatcher.handle(ctx, intentEvent(webhookevent.TypeIntentSucceeded))

			gomega.Expect(queue.processed).To(gomega.BeEmpty())
			gomega.Expect(queue.retried).To(gomega.HaveLen(1))
			gomega.Expect(queue.retried[0].lastError).To(gomega.ContainSubstring("payment not found"))
			gomega.Expect(queue.retried[0].nextAttemptAt).To(gomega.BeTemporally("~", before.Add(30*time.Second), 5*time.Second))
		})

		ginkgo.It("should double the backoff on later attempts", func() {
			escrowEvts.err = errors.New("payment not found for intent")
			event := intentEvent(webhookevent.TypeIntentSucceeded)
			event.Attempts = 1
			before := time.Now().UTC()

			dispatcher.handle(ctx, event)

			gomega.Expect(queue.retried).To(gomega.HaveLen(1))
			gomega.Expect(queue.retried[0].nextAttemptAt).To(gomega.BeTemporally("~", before.Add(time.Minute), 5*time.Second))
		})

		ginkgo.It("should dead-letter the event once the attempt budget runs out", func() {
			escrowEvts.err = errors.New("payment not found for intent")
			event := intentEvent(webhookevent.TypeIntentSucceeded)
			event.Attempts = 2

			dispatcher.handle(ctx, event)

			gomega.Expect(queue.dead).To(gomega.Equal([]int64{1}))
			gomega.Expect(queue.retried).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("Start", func() {
		ginkgo.It("should drain the queue through the worker pool until canceled", func() {
			gomega.Expect(queue.Enqueue(intentEvent(webhookevent.TypeIntentSucceeded))).To(gomega.Succeed())
			gomega.Expect(queue.Enqueue(transferEvent(webhookevent.TypePayoutPaid))).To(gomega.Succeed())

			runCtx, cancel := context.WithCancel(ctx)
			dispatcher.config.PollInterval = 10 * time.Millisecond
			done := make(chan struct{})
			go func() {
				dispatcher.Start(runCtx)
				close(done)
			}()

			gomega.Eventually(func() int {
				return escrowEvts.succeededCount() + payoutEvts.paidCount()
			}).WithTimeout(2 * time.Second).Should(gomega.Equal(2))

			cancel()
			gomega.Eventually(done).WithTimeout(2 * time.Second).Should(gomega.BeClosed())
		})

		ginkgo.It("should periodically sweep claims abandoned by dead workers", func() {
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			dispatcher.config.PollInterval = 10 * time.Millisecond
			dispatcher.config.StaleClaimAfter = 20 * time.Millisecond
			done := make(chan struct{})
			go func() {
				dispatcher.Start(runCtx)
				close(done)
			}()

			gomega.Eventually(queue.reclaimCount).WithTimeout(2 * time.Second).Should(gomega.BeNumerically(">=", 2))

			queue.mu.Lock()
			cutoff := queue.reclaims[0]
			queue.mu.Unlock()
			gomega.Expect(cutoff).To(gomega.Equal(20 * time.Millisecond))

			cancel()
			gomega.Eventually(done).WithTimeout(2 * time.Second).Should(gomega.BeClosed())
		})
	})
})
