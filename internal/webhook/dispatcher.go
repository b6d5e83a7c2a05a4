package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	webhookevent "github.com/collabary/payments/internal/core/datamodel/webhookevent"
)

type DispatcherConfig struct {
	Workers         int
	PollInterval    time.Duration
	BatchSize       int
	MaxAttempts     int
	RetryBackoff    time.Duration
	StaleClaimAfter time.Duration
}

// Dispatcher polls the durable queue and fans events out to a worker
// pool. Handler failures requeue the event with exponential backoff
// until the attempt budget runs out; after that the event is
// dead-lettered for manual inspection.
type Dispatcher struct {
	queue       Queue
	escrow      EscrowEvents
	payouts     PayoutEvents
	config      DispatcherConfig
	logger      *slog.Logger
	jobs        chan *webhookevent.Event
	wg          sync.WaitGroup
	lastReclaim time.Time
}

func NewDispatcher(queue Queue, escrowEvents EscrowEvents, payoutEvents PayoutEvents, config DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = 5
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 30 * time.Second
	}
	if config.StaleClaimAfter <= 0 {
		config.StaleClaimAfter = 5 * time.Minute
	}

	return &Dispatcher{
		queue:   queue,
		escrow:  escrowEvents,
		payouts: payoutEvents,
		config:  config,
		logger:  logger,
		jobs:    make(chan *webhookevent.Event, config.BatchSize),
	}
}

// Start runs the poll loop until the context is canceled, then drains
// the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("webhook dispatcher starting",
		"workers", d.config.Workers,
		"poll_interval", d.config.PollInterval)

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(d.jobs)
			d.wg.Wait()
			d.logger.Info("webhook dispatcher stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	// claims from workers that died mid-flight would stay in processing
	// forever; sweep them back to pending on the same cadence as the
	// staleness cutoff
	if time.Since(d.lastReclaim) >= d.config.StaleClaimAfter {
		d.lastReclaim = time.Now()
		reclaimed, err := d.queue.ReclaimStale(d.config.StaleClaimAfter)
		if err != nil {
			d.logger.Error("failed to reclaim stale webhook claims", "error", err)
		} else if reclaimed > 0 {
			d.logger.Warn("requeued webhook events abandoned by dead workers", "count", reclaimed)
		}
	}

	events, err := d.queue.Dequeue(d.config.BatchSize)
	if err != nil {
		d.logger.Error("failed to dequeue webhook events", "error", err)
		return
	}

	for _, event := range events {
		select {
		case d.jobs <- event:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for event := range d.jobs {
		d.handle(ctx, event)
	}
	d.logger.Debug("webhook worker shutting down", "worker_id", id)
}

func (d *Dispatcher) handle(ctx context.Context, event *webhookevent.Event) {
	err := d.Process(ctx, event)
	if err == nil {
		if markErr := d.queue.MarkProcessed(event.ID); markErr != nil {
			d.logger.Error("failed to mark event processed", "event_id", event.EventID, "error", markErr)
		}
		return
	}

	attempt := event.Attempts + 1
	if attempt >= d.config.MaxAttempts {
		d.logger.Error("webhook event dead-lettered",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"attempts", attempt,
			"error", err)
		if markErr := d.queue.MarkDead(event.ID, err.Error()); markErr != nil {
			d.logger.Error("failed to dead-letter event", "event_id", event.EventID, "error", markErr)
		}
		return
	}

	backoff := d.backoffFor(attempt)
	d.logger.Warn("webhook event processing failed, will retry",
		"event_id", event.EventID,
		"attempt", attempt,
		"retry_in", backoff,
		"error", err)
	if markErr := d.queue.Retry(event.ID, err.Error(), time.Now().UTC().Add(backoff)); markErr != nil {
		d.logger.Error("failed to requeue event", "event_id", event.EventID, "error", markErr)
	}
}

// backoffFor doubles the base per attempt: base, 2x, 4x, ...
func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	backoff := d.config.RetryBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > 30*time.Minute {
			return 30 * time.Minute
		}
	}
	return backoff
}

// Process dispatches one verified event to its idempotent handler.
func (d *Dispatcher) Process(ctx context.Context, event *webhookevent.Event) error {
	switch event.EventType {
	case webhookevent.TypeIntentSucceeded:
		payload, err := decodeIntentPayload(event.Payload)
		if err != nil {
			return err
		}
		return d.escrow.HandleIntentSucceeded(ctx, payload.IntentID)
	case webhookevent.TypeIntentFailed:
		payload, err := decodeIntentPayload(event.Payload)
		if err != nil {
			return err
		}
		return d.escrow.HandleIntentFailed(ctx, payload.IntentID, payload.FailureReason)
	case webhookevent.TypeChargeRefunded:
		payload, err := decodeIntentPayload(event.Payload)
		if err != nil {
			return err
		}
		return d.escrow.HandleChargeRefunded(ctx, payload.IntentID)
	case webhookevent.TypePayoutPaid:
		payload, err := decodeTransferPayload(event.Payload)
		if err != nil {
			return err
		}
		return d.payouts.HandlePayoutPaid(ctx, payload.TransferID)
	case webhookevent.TypePayoutFailed:
		payload, err := decodeTransferPayload(event.Payload)
		if err != nil {
			return err
		}
		return d.payouts.HandlePayoutFailed(ctx, payload.TransferID, payload.FailureReason)
	default:
		return fmt.Errorf("unknown event type %q", event.EventType)
	}
}

func decodeIntentPayload(raw json.RawMessage) (*webhookevent.IntentPayload, error) {
	var payload webhookevent.IntentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed intent payload: %w", err)
	}
	if payload.IntentID == "" {
		return nil, fmt.Errorf("intent payload missing intent_id")
	}
	return &payload, nil
}

func decodeTransferPayload(raw json.RawMessage) (*webhookevent.TransferPayload, error) {
	var payload webhookevent.TransferPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed transfer payload: %w", err)
	}
	if payload.TransferID == "" {
		return nil, fmt.Errorf("transfer payload missing transfer_id")
	}
	return &payload, nil
}
