package registry

import (
	"github.com/scalevoice/stt-balancer/internal/worker"
)

// Registry is an immutable, index-addressable set of workers. Worker IDs
// are their positions in the registry.
type Registry struct {
	workers []*worker.Worker
}

// New builds a registry over the given workers. The slice is not copied;
// callers must not mutate it afterwards.
func New(workers []*worker.Worker) *Registry {
	return &Registry{workers: workers}
}

// Get returns the worker at index i.
func (r *Registry) Get(i int) *worker.Worker {
	return r.workers[i]
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	return len(r.workers)
}

// All returns the registered workers in ID order.
func (r *Registry) All() []*worker.Worker {
	return r.workers
}
