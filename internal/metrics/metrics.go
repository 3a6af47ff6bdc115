package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mutex           sync.RWMutex
	acquireSuccess  map[string]int64
	acquireFailure  map[string]int64
	heartbeats      map[string]int64
	lastUtilization map[string]float64
	healthStatus    map[string]bool
	totalSuccess    int64
	totalFailure    int64
	startTime       time.Time
}

type Snapshot struct {
	TotalAcquireSuccess int64                    `json:"total_acquire_success"`
	TotalAcquireFailure int64                    `json:"total_acquire_failure"`
	Uptime              time.Duration            `json:"uptime"`
	Workers             map[string]WorkerMetrics `json:"workers"`
}

type WorkerMetrics struct {
	AcquireSuccess  int64   `json:"acquire_success"`
	AcquireFailure  int64   `json:"acquire_failure"`
	Heartbeats      int64   `json:"heartbeats"`
	LastUtilization float64 `json:"last_utilization"`
	Healthy         bool    `json:"healthy"`
}

func (m *Metrics) RecordAcquireSuccess(worker string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.totalSuccess++
	if worker != "" {
		m.acquireSuccess[worker]++
	}
}

func (m *Metrics) RecordAcquireFailure(worker string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.totalFailure++
	if worker != "" {
		m.acquireFailure[worker]++
	}
}

func (m *Metrics) RecordHeartbeat(worker string, utilization float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.heartbeats[worker]++
	m.lastUtilization[worker] = utilization
}

func (m *Metrics) UpdateHealthStatus(worker string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[worker] = healthy
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalAcquireSuccess: m.totalSuccess,
		TotalAcquireFailure: m.totalFailure,
		Uptime:              time.Since(m.startTime),
		Workers:             make(map[string]WorkerMetrics),
	}

	allWorkers := make(map[string]bool)
	for worker := range m.acquireSuccess {
		allWorkers[worker] = true
	}
	for worker := range m.acquireFailure {
		allWorkers[worker] = true
	}
	for worker := range m.heartbeats {
		allWorkers[worker] = true
	}
	for worker := range m.healthStatus {
		allWorkers[worker] = true
	}

	for worker := range allWorkers {
		snap.Workers[worker] = WorkerMetrics{
			AcquireSuccess:  m.acquireSuccess[worker],
			AcquireFailure:  m.acquireFailure[worker],
			Heartbeats:      m.heartbeats[worker],
			LastUtilization: m.lastUtilization[worker],
			Healthy:         m.healthStatus[worker],
		}
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		acquireSuccess:  make(map[string]int64),
		acquireFailure:  make(map[string]int64),
		heartbeats:      make(map[string]int64),
		lastUtilization: make(map[string]float64),
		healthStatus:    make(map[string]bool),
		startTime:       time.Now(),
	}
}
