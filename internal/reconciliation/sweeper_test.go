package reconciliation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestSweeper(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Reconciliation Sweeper Suite")
}

type recordingReconciler struct {
	mu     sync.Mutex
	calls  int
	window time.Duration
	limit  int
	err    error
}

func (m *recordingReconciler) ReconcileProcessing(ctx context.Context, graceWindow time.Duration, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.window = graceWindow
	m.limit = limit
	return m.err
}

func (m *recordingReconciler) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ = ginkgo.Describe("Sweeper", func() {
	var (
		reconciler *recordingReconciler
		logger     *slog.Logger
	)

	ginkgo.BeforeEach(func() {
		reconciler = &recordingReconciler{}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	ginkgo.It("should sweep on every tick with the configured window and batch size", func() {
		sweeper := NewSweeper(reconciler, SweeperConfig{
			SweepInterval: 10 * time.Millisecond,
			GraceWindow:   15 * time.Minute,
			BatchSize:     25,
		}, logger)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			sweeper.Start(ctx)
			close(done)
		}()

		gomega.Eventually(reconciler.callCount).WithTimeout(2 * time.Second).Should(gomega.BeNumerically(">=", 2))

		cancel()
		gomega.Eventually(done).WithTimeout(2 * time.Second).Should(gomega.BeClosed())

		reconciler.mu.Lock()
		defer reconciler.mu.Unlock()
		gomega.Expect(reconciler.window).To(gomega.Equal(15 * time.Minute))
		gomega.Expect(reconciler.limit).To(gomega.Equal(25))
	})

	ginkgo.It("should keep sweeping after a failed pass", func() {
		reconciler.err = errors.New("processor unreachable")
		sweeper := NewSweeper(reconciler, SweeperConfig{SweepInterval: 10 * time.Millisecond}, logger)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			sweeper.Start(ctx)
			close(done)
		}()

		gomega.Eventually(reconciler.callCount).WithTimeout(2 * time.Second).Should(gomega.BeNumerically(">=", 2))

		cancel()
		gomega.Eventually(done).WithTimeout(2 * time.Second).Should(gomega.BeClosed())
	})

	ginkgo.It("should apply defaults for zero config values", func() {
		sweeper := NewSweeper(reconciler, SweeperConfig{}, logger)

		gomega.Expect(sweeper.config.SweepInterval).To(gomega.Equal(5 * time.Minute))
		gomega.Expect(sweeper.config.GraceWindow).To(gomega.Equal(15 * time.Minute))
		gomega.Expect(sweeper.config.BatchSize).To(gomega.Equal(50))
	})
})
