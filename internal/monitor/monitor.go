package monitor

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/scalevoice/stt-balancer/internal/metrics"
	"github.com/scalevoice/stt-balancer/internal/protocol"
	"github.com/scalevoice/stt-balancer/internal/worker"
)

// ReconnectBackoff is the fixed delay between reconnect attempts after the
// control channel drops. There is no retry cap; the monitor keeps trying
// until shutdown.
const ReconnectBackoff = 1 * time.Second

// Monitor reads heartbeat frames from one worker's control channel and is
// the sole writer of that worker's overload flag.
type Monitor struct {
	worker      *worker.Worker
	logger      *slog.Logger
	collector   *metrics.Collector
	dialTimeout time.Duration

	mutex sync.Mutex
	conn  net.Conn
}

// New wires a monitor to the control connection produced by the worker
// handshake. The monitor owns conn from this point on.
func New(w *worker.Worker, conn net.Conn, dialTimeout time.Duration, logger *slog.Logger, collector *metrics.Collector) *Monitor {
	return &Monitor{
		worker:      w,
		logger:      logger,
		collector:   collector,
		dialTimeout: dialTimeout,
		conn:        conn,
	}
}

// Run blocks until ctx is cancelled. On cancellation a close byte is sent
// on a best-effort basis and the control connection is torn down, which
// also unblocks any in-flight read.
func (m *Monitor) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, m.farewell)
	defer stop()

	m.logger.Info("Health monitor started",
		slog.String("worker", m.worker.Address()))

	for {
		if ctx.Err() != nil {
			m.logger.Info("Health monitor stopped",
				slog.String("worker", m.worker.Address()))
			return
		}

		tag, err := protocol.ReadByte(m.currentConn())
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			m.handleDisconnect(ctx, err)
			continue
		}

		if m.worker.SetInError(false) {
			m.logger.Info("Worker is back up",
				slog.String("worker", m.worker.Address()))
			m.emitHealth(true)
		}

		if tag != protocol.TagHeartbeat {
			m.logger.Warn("Unexpected frame tag from worker",
				slog.String("worker", m.worker.Address()),
				slog.Int("tag", int(tag)))
			continue
		}

		utilization, err := protocol.ReadFloat64(m.currentConn())
		if err != nil {
			// Truncated frame; the next read will hit the same error
			// and go through the reconnect path.
			m.logger.Warn("Failed to read utilization",
				slog.String("worker", m.worker.Address()),
				slog.Any("err", err))
			continue
		}

		overloaded := utilization > m.worker.MaxUtilization()
		if m.worker.SetOverloaded(overloaded) {
			if overloaded {
				m.logger.Warn("Worker is overloaded",
					slog.String("worker", m.worker.Address()),
					slog.Float64("utilization", utilization))
			} else {
				m.logger.Info("Worker is no longer overloaded",
					slog.String("worker", m.worker.Address()))
			}
		}

		m.collector.Emit(metrics.Event{
			Type:        metrics.EventHeartbeatReceived,
			Timestamp:   time.Now(),
			Worker:      m.worker.Address(),
			Utilization: utilization,
		})
	}
}

func (m *Monitor) handleDisconnect(ctx context.Context, readErr error) {
	m.logger.Error("Error reading from worker",
		slog.String("worker", m.worker.Address()),
		slog.Any("err", readErr))

	if m.worker.SetInError(true) {
		m.emitHealth(false)
	}
	m.collector.Emit(metrics.Event{
		Type:      metrics.EventStreamFailed,
		Timestamp: time.Now(),
		Worker:    m.worker.Address(),
	})

	dialer := net.Dialer{Timeout: m.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.worker.Address())
	if err != nil {
		m.logger.Error("Error reconnecting to worker",
			slog.String("worker", m.worker.Address()),
			slog.Any("err", err))

		select {
		case <-ctx.Done():
		case <-time.After(ReconnectBackoff):
		}
		return
	}

	m.replaceConn(conn)
}

func (m *Monitor) currentConn() net.Conn {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.conn
}

func (m *Monitor) replaceConn(conn net.Conn) {
	m.mutex.Lock()
	old := m.conn
	m.conn = conn
	m.mutex.Unlock()

	if old != nil {
		old.Close()
	}
}

// farewell sends the close byte and tears down the connection. Both are
// best-effort: the worker may already be gone.
func (m *Monitor) farewell() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.conn == nil {
		return
	}
	if err := protocol.WriteByte(m.conn, protocol.TagClose); err != nil {
		m.logger.Error("Error closing channel to worker",
			slog.String("worker", m.worker.Address()),
			slog.Any("err", err))
	}
	m.conn.Close()
}

func (m *Monitor) emitHealth(healthy bool) {
	m.collector.Emit(metrics.Event{
		Type:      metrics.EventHealthChanged,
		Timestamp: time.Now(),
		Worker:    m.worker.Address(),
		Healthy:   healthy,
	})
}
