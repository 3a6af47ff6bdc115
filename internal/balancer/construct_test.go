package balancer_test

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scalevoice/stt-balancer/internal/balancer"
	"github.com/scalevoice/stt-balancer/internal/metrics"
	"github.com/scalevoice/stt-balancer/internal/protocol"
	"github.com/scalevoice/stt-balancer/pkg/logger"
)

// mockWorker accepts monitoring-channel requests and answers the handshake,
// then keeps the control channel open.
type mockWorker struct {
	ln net.Listener
}

func startMockWorker(maxUtilization float64, canOverload byte) *mockWorker {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer GinkgoRecover()

				req, err := protocol.ReadByte(conn)
				if err != nil {
					return
				}
				Expect(req).To(Equal(byte(protocol.TagMonitorRequest)))

				protocol.WriteByte(conn, protocol.TagAccepted)
				protocol.WriteFloat64(conn, maxUtilization)
				protocol.WriteByte(conn, canOverload)
				// hold the control channel open until the test ends
				protocol.ReadByte(conn)
			}(conn)
		}
	}()

	return &mockWorker{ln: ln}
}

func (m *mockWorker) address() string { return m.ln.Addr().String() }
func (m *mockWorker) stop()           { m.ln.Close() }

var _ = Describe("New", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	newBalancer := func(specs []balancer.WorkerSpec) (*balancer.Balancer, error) {
		log := logger.New("error", false, "dev", GinkgoWriter)
		return balancer.New(ctx, specs, time.Second, log, metrics.NewCollector(100, log))
	}

	It("should connect to every configured worker", func() {
		first := startMockWorker(0.8, 0x00)
		second := startMockWorker(0.5, 0x01)
		defer first.stop()
		defer second.stop()

		host, portStr, err := net.SplitHostPort(second.address())
		Expect(err).NotTo(HaveOccurred())
		port, err := net.LookupPort("tcp", portStr)
		Expect(err).NotTo(HaveOccurred())

		lb, err := newBalancer([]balancer.WorkerSpec{
			{Address: first.address()},
			{IP: host, Port: port},
		})

		Expect(err).NotTo(HaveOccurred())
		workers := lb.Workers()
		Expect(workers).To(HaveLen(2))
		Expect(workers[0].ID()).To(Equal(0))
		Expect(workers[0].MaxUtilization()).To(Equal(0.8))
		Expect(workers[0].CanOverload()).To(BeFalse())
		Expect(workers[1].MaxUtilization()).To(Equal(0.5))
		Expect(workers[1].CanOverload()).To(BeTrue())
	})

	It("should abort construction when a worker is unreachable", func() {
		reachable := startMockWorker(0.8, 0x00)
		defer reachable.stop()

		unreachable := startMockWorker(0.8, 0x00)
		address := unreachable.address()
		unreachable.stop()

		_, err := newBalancer([]balancer.WorkerSpec{
			{Address: reachable.address()},
			{Address: address},
		})

		Expect(err).To(HaveOccurred())
	})

	It("should reject a malformed worker address", func() {
		_, err := newBalancer([]balancer.WorkerSpec{
			{Address: "missing-a-port"},
		})

		Expect(err).To(MatchError(ContainSubstring("invalid worker address")))
	})

	It("should fail with an empty spec list", func() {
		_, err := newBalancer(nil)

		Expect(err).To(HaveOccurred())
	})
})
