// Package parallel runs fragment work across a fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// minRowsPerBand keeps bands large enough that scheduling does not dominate
// small draws.
const minRowsPerBand = 8

// WorkerPool executes row bands of a draw call in parallel.
//
// Each worker owns a queue. An idle worker steals from its neighbours before
// blocking, so bands with expensive kernels (long bilateral loops on busy
// regions) do not serialise the draw.
//
// WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), max(workers*4, 8))
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case fn := <-own:
			fn()
		default:
			if fn := p.steal(id); fn != nil {
				fn()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case fn := <-own:
				fn()
			}
		}
	}
}

func (p *WorkerPool) drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			fn()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := 1; i < p.workers; i++ {
		select {
		case fn := <-p.queues[(id+i)%p.workers]:
			return fn
		default:
		}
	}
	return nil
}

// ForRows splits [0, height) into bands and calls fn(y0, y1) for each band,
// returning when every band has finished. Bands never overlap.
//
// A closed pool runs the bands on the calling goroutine.
func (p *WorkerPool) ForRows(height int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}

	band := max((height+p.workers-1)/p.workers, minRowsPerBand)
	if !p.running.Load() || band >= height {
		fn(0, height)
		return
	}

	var pending sync.WaitGroup
	for i, y0 := 0, 0; y0 < height; i, y0 = i+1, y0+band {
		y1 := min(y0+band, height)
		pending.Add(1)
		task := func() {
			defer pending.Done()
			fn(y0, y1)
		}
		select {
		case p.queues[i%p.workers] <- task:
		case <-p.done:
			task()
		}
	}
	pending.Wait()
}

// Close stops the workers after draining queued bands.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still schedules work on its workers.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
