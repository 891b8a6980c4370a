package worker

import (
	"context"
	"sync"
)

// Pool runs several independent Worker loops in one process. Each loop owns
// at most one job at a time.
type Pool struct {
	workers []*Worker
}

// NewPool wraps the given workers.
func NewPool(workers ...*Worker) *Pool {
	return &Pool{workers: workers}
}

// Run starts every loop and blocks until all of them have returned.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Size returns the number of loops.
func (p *Pool) Size() int {
	return len(p.workers)
}
