package balancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/scalevoice/stt-balancer/internal/metrics"
	"github.com/scalevoice/stt-balancer/internal/monitor"
	"github.com/scalevoice/stt-balancer/internal/registry"
	"github.com/scalevoice/stt-balancer/internal/stream"
	"github.com/scalevoice/stt-balancer/internal/worker"
)

// NumServiceTries bounds the selection scan. Once this many candidates have
// been examined in one call the search gives up.
const NumServiceTries = 10

// ErrNoAvailableServers is returned when the selection scan exhausts its
// retry budget without finding a selectable worker.
var ErrNoAvailableServers = errors.New("no available stt servers")

// WorkerSpec identifies one configured worker: either a hostname (resolved
// via DNS at startup, one worker per resolved address) or a literal IP and
// port.
type WorkerSpec struct {
	// Address is a "host:port" endpoint. The host part may be a DNS name.
	Address string
	// IP and Port are used when Address is empty.
	IP   string
	Port int
}

// Balancer selects workers for new transcription sessions. It is built once
// at startup and shared by all callers.
type Balancer struct {
	cursor    atomic.Uint64
	registry  *registry.Registry
	logger    *slog.Logger
	collector *metrics.Collector
}

// New resolves the worker specs, performs the monitoring handshake with
// every worker and starts one health monitor per worker on ctx. Any
// resolution or handshake failure aborts construction: a partially usable
// worker fleet is treated as a startup failure, not degraded service.
func New(ctx context.Context, specs []WorkerSpec, dialTimeout time.Duration, logger *slog.Logger, collector *metrics.Collector) (*Balancer, error) {
	addresses, err := resolveSpecs(ctx, specs)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, errors.New("no workers configured")
	}

	workers := make([]*worker.Worker, 0, len(addresses))
	for id, address := range addresses {
		w, conn, err := worker.Connect(ctx, id, address, dialTimeout)
		if err != nil {
			return nil, err
		}

		logger.Debug("Connected to worker",
			slog.String("worker", address),
			slog.Float64("max_utilization", w.MaxUtilization()),
			slog.Bool("can_overload", w.CanOverload()))

		go monitor.New(w, conn, dialTimeout, logger, collector).Run(ctx)
		workers = append(workers, w)
	}

	return &Balancer{
		registry:  registry.New(workers),
		logger:    logger,
		collector: collector,
	}, nil
}

// NewWithRegistry builds a balancer over an existing registry, without
// dialing anything. Monitors are not started.
func NewWithRegistry(reg *registry.Registry, logger *slog.Logger, collector *metrics.Collector) *Balancer {
	return &Balancer{
		registry:  reg,
		logger:    logger,
		collector: collector,
	}
}

func resolveSpecs(ctx context.Context, specs []WorkerSpec) ([]string, error) {
	var addresses []string

	for _, spec := range specs {
		if spec.Address == "" {
			addresses = append(addresses, net.JoinHostPort(spec.IP, strconv.Itoa(spec.Port)))
			continue
		}

		host, port, err := net.SplitHostPort(spec.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid worker address %q: %w", spec.Address, err)
		}

		if net.ParseIP(host) != nil {
			addresses = append(addresses, spec.Address)
			continue
		}

		ips, err := net.DefaultResolver.LookupHost(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("resolving worker host %q: %w", host, err)
		}
		for _, ip := range ips {
			addresses = append(addresses, net.JoinHostPort(ip, port))
		}
	}

	return addresses, nil
}

// nextIndex advances the shared selection cursor and returns the candidate
// worker index. The cursor is a single atomic counter so concurrent callers
// interleave without a lock.
func (b *Balancer) nextIndex() int {
	n := b.cursor.Add(1)
	return int((n - 1) % uint64(b.registry.Len()))
}

// findWorker runs the round-robin scan. Workers that are overloaded or in
// error are skipped; after one full lap with no healthy worker the scan
// relaxes and accepts overload-tolerant workers too. The iteration budget
// is shared between both phases and is not reset when the criteria relax.
func (b *Balancer) findWorker() (int, error) {
	idx := b.nextIndex()
	iterCount := 0
	allowOverload := false

	for {
		w := b.registry.Get(idx)

		// Fast path: usually the first candidate is selectable.
		if (allowOverload && w.CanOverload()) ||
			(!w.IsOverloaded() && !w.IsInError()) {
			return idx, nil
		}

		idx = b.nextIndex()

		if !allowOverload && iterCount > b.registry.Len() {
			// A full lap found nothing healthy: accept workers that
			// tolerate overload.
			allowOverload = true
		}

		iterCount++

		if iterCount > NumServiceTries {
			b.collector.Emit(metrics.Event{
				Type:      metrics.EventStreamFailed,
				Timestamp: time.Now(),
			})
			b.logger.Error("No available STT workers",
				slog.Int("tries", NumServiceTries))
			return 0, ErrNoAvailableServers
		}
	}
}

// GetStream selects a worker and opens a new data connection for a
// transcription session. It only ever blocks on the selected worker's
// connection attempt.
func (b *Balancer) GetStream(ctx context.Context, language string, verbose bool) (*stream.Stream, error) {
	id, err := b.findWorker()
	if err != nil {
		return nil, err
	}
	w := b.registry.Get(id)

	s, err := w.OpenStream(ctx, language, verbose)
	if err != nil {
		b.collector.Emit(metrics.Event{
			Type:      metrics.EventStreamFailed,
			Timestamp: time.Now(),
			Worker:    w.Address(),
		})
		return nil, fmt.Errorf("opening stream to worker %s: %w", w.Address(), err)
	}

	b.collector.Emit(metrics.Event{
		Type:      metrics.EventStreamAcquired,
		Timestamp: time.Now(),
		Worker:    w.Address(),
	})
	return s, nil
}

// Workers returns the registered workers in ID order.
func (b *Balancer) Workers() []*worker.Worker {
	return b.registry.All()
}

// Selectable reports whether at least one worker could currently be chosen
// by the selection scan, counting overload-tolerant workers as a last
// resort.
func (b *Balancer) Selectable() bool {
	for _, w := range b.registry.All() {
		if w.CanOverload() || (!w.IsOverloaded() && !w.IsInError()) {
			return true
		}
	}
	return false
}
