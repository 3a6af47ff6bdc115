package metrics_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scalevoice/stt-balancer/internal/metrics"
	"github.com/scalevoice/stt-balancer/pkg/logger"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Metrics Suite")
}

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	It("should count acquire successes and failures", func() {
		m.RecordAcquireSuccess("10.0.0.1:7269")
		m.RecordAcquireSuccess("10.0.0.1:7269")
		m.RecordAcquireFailure("10.0.0.2:7269")

		snap := m.Snapshot()

		Expect(snap.TotalAcquireSuccess).To(Equal(int64(2)))
		Expect(snap.TotalAcquireFailure).To(Equal(int64(1)))
		Expect(snap.Workers["10.0.0.1:7269"].AcquireSuccess).To(Equal(int64(2)))
		Expect(snap.Workers["10.0.0.2:7269"].AcquireFailure).To(Equal(int64(1)))
	})

	It("should count selection failures with no worker attached", func() {
		m.RecordAcquireFailure("")

		snap := m.Snapshot()

		Expect(snap.TotalAcquireFailure).To(Equal(int64(1)))
		Expect(snap.Workers).To(BeEmpty())
	})

	It("should track heartbeats and the last utilization", func() {
		m.RecordHeartbeat("10.0.0.1:7269", 0.4)
		m.RecordHeartbeat("10.0.0.1:7269", 0.7)

		snap := m.Snapshot()

		Expect(snap.Workers["10.0.0.1:7269"].Heartbeats).To(Equal(int64(2)))
		Expect(snap.Workers["10.0.0.1:7269"].LastUtilization).To(Equal(0.7))
	})

	It("should track health transitions", func() {
		m.UpdateHealthStatus("10.0.0.1:7269", false)

		Expect(m.Snapshot().Workers["10.0.0.1:7269"].Healthy).To(BeFalse())

		m.UpdateHealthStatus("10.0.0.1:7269", true)

		Expect(m.Snapshot().Workers["10.0.0.1:7269"].Healthy).To(BeTrue())
	})
})

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(16, logger.New("error", false, "dev", GinkgoWriter))
		collector.Start(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	It("should process emitted events asynchronously", func() {
		collector.Emit(metrics.Event{
			Type:      metrics.EventStreamAcquired,
			Timestamp: time.Now(),
			Worker:    "10.0.0.1:7269",
		})
		collector.Emit(metrics.Event{
			Type:        metrics.EventHeartbeatReceived,
			Timestamp:   time.Now(),
			Worker:      "10.0.0.1:7269",
			Utilization: 0.5,
		})

		Eventually(func() int64 {
			return collector.Snapshot().TotalAcquireSuccess
		}).Should(Equal(int64(1)))
		Eventually(func() float64 {
			return collector.Snapshot().Workers["10.0.0.1:7269"].LastUtilization
		}).Should(Equal(0.5))
	})

	It("should never block the caller when the buffer is full", func() {
		small := metrics.NewCollector(1, logger.New("error", false, "dev", GinkgoWriter))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 100; i++ {
				small.Emit(metrics.Event{Type: metrics.EventStreamFailed})
			}
		}()

		Eventually(done).Should(BeClosed())
	})
})
