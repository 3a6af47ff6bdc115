package worker_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scalevoice/stt-balancer/internal/protocol"
	"github.com/scalevoice/stt-balancer/internal/stream"
	"github.com/scalevoice/stt-balancer/internal/worker"
)

func TestWorker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Worker Suite")
}

// countingOpener records every open attempt and returns a canned result.
type countingOpener struct {
	calls int
	err   error
}

func (o *countingOpener) open(ctx context.Context, address, language string, verbose bool) (*stream.Stream, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return &stream.Stream{}, nil
}

var _ = Describe("Worker", func() {
	var (
		opener *countingOpener
		w      *worker.Worker
	)

	params := func(canOverload bool) protocol.MonitorParams {
		return protocol.MonitorParams{MaxUtilization: 0.8, CanOverload: canOverload}
	}

	BeforeEach(func() {
		opener = &countingOpener{}
	})

	Describe("OpenStream", func() {
		Context("when the worker is overloaded and not overload-tolerant", func() {
			BeforeEach(func() {
				w = worker.New(0, "127.0.0.1:7269", params(false), opener.open)
				w.SetOverloaded(true)
			})

			It("should reject locally without opening a connection", func() {
				_, err := w.OpenStream(context.Background(), "en", false)

				Expect(err).To(MatchError(worker.ErrOverloaded))
				Expect(opener.calls).To(BeZero())
			})
		})

		Context("when the worker is overloaded but overload-tolerant", func() {
			BeforeEach(func() {
				w = worker.New(0, "127.0.0.1:7269", params(true), opener.open)
				w.SetOverloaded(true)
			})

			It("should still open a connection", func() {
				s, err := w.OpenStream(context.Background(), "en", false)

				Expect(err).NotTo(HaveOccurred())
				Expect(s).NotTo(BeNil())
				Expect(opener.calls).To(Equal(1))
			})
		})

		Context("when the connection attempt fails", func() {
			BeforeEach(func() {
				w = worker.New(0, "127.0.0.1:7269", params(false), opener.open)
				opener.err = errors.New("connection refused")
			})

			It("should set the error flag", func() {
				_, err := w.OpenStream(context.Background(), "en", false)

				Expect(err).To(HaveOccurred())
				Expect(w.IsInError()).To(BeTrue())
			})

			It("should clear the error flag on the next success", func() {
				w.OpenStream(context.Background(), "en", false)
				Expect(w.IsInError()).To(BeTrue())

				opener.err = nil
				_, err := w.OpenStream(context.Background(), "en", false)

				Expect(err).NotTo(HaveOccurred())
				Expect(w.IsInError()).To(BeFalse())
			})
		})
	})

	Describe("health flags", func() {
		BeforeEach(func() {
			w = worker.New(3, "127.0.0.1:7269", params(false), opener.open)
		})

		It("should keep overload and error flags independent", func() {
			w.SetOverloaded(true)
			Expect(w.IsOverloaded()).To(BeTrue())
			Expect(w.IsInError()).To(BeFalse())

			w.SetInError(true)
			w.SetOverloaded(false)
			Expect(w.IsOverloaded()).To(BeFalse())
			Expect(w.IsInError()).To(BeTrue())
		})

		It("should report whether a flag changed", func() {
			Expect(w.SetOverloaded(true)).To(BeTrue())
			Expect(w.SetOverloaded(true)).To(BeFalse())
			Expect(w.SetOverloaded(false)).To(BeTrue())
		})

		It("should expose its identity", func() {
			Expect(w.ID()).To(Equal(3))
			Expect(w.Address()).To(Equal("127.0.0.1:7269"))
		})
	})
})

var _ = Describe("Connect", func() {
	var ln net.Listener

	BeforeEach(func() {
		var err error
		ln, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		ln.Close()
	})

	// serveHandshake accepts one connection and plays the worker side of
	// the monitoring handshake.
	serveHandshake := func(accept byte, maxUtilization float64, canOverload byte) {
		go func() {
			defer GinkgoRecover()

			conn, err := ln.Accept()
			Expect(err).NotTo(HaveOccurred())

			req, err := protocol.ReadByte(conn)
			Expect(err).NotTo(HaveOccurred())
			Expect(req).To(Equal(byte(protocol.TagMonitorRequest)))

			Expect(protocol.WriteByte(conn, accept)).To(Succeed())
			if accept == protocol.TagAccepted {
				Expect(protocol.WriteFloat64(conn, maxUtilization)).To(Succeed())
				Expect(protocol.WriteByte(conn, canOverload)).To(Succeed())
			}
		}()
	}

	It("should negotiate worker parameters over TCP", func() {
		serveHandshake(protocol.TagAccepted, 0.75, 0x01)

		w, conn, err := worker.Connect(context.Background(), 0, ln.Addr().String(), time.Second)

		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()
		Expect(w.MaxUtilization()).To(Equal(0.75))
		Expect(w.CanOverload()).To(BeTrue())
		Expect(w.Address()).To(Equal(ln.Addr().String()))
	})

	It("should fail construction on an unexpected handshake reply", func() {
		serveHandshake(0x42, 0, 0)

		_, _, err := worker.Connect(context.Background(), 0, ln.Addr().String(), time.Second)

		var unexpected protocol.ErrUnexpectedReply
		Expect(err).To(HaveOccurred())
		Expect(errors.As(err, &unexpected)).To(BeTrue())
	})

	It("should fail construction when the worker is unreachable", func() {
		addr := ln.Addr().String()
		ln.Close()

		_, _, err := worker.Connect(context.Background(), 0, addr, 100*time.Millisecond)

		Expect(err).To(HaveOccurred())
	})
})
