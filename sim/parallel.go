package sim

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/systems"
)

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	Neighbors  []components.AgentID
	Candidates []systems.Candidate
	Stimuli    map[systems.Stimulus]float64
}

// chunkFunc processes items [start, end) using the buffers of one worker.
type chunkFunc func(scratch *workerScratch, start, end int)

// workChunk represents a range of agents for a worker to process.
type workChunk struct {
	start, end int
	fn         chunkFunc
}

// workerPool runs chunked work on persistent goroutines. Workers only read
// the tick snapshot and write their own output slots; results are applied
// serially by the caller.
type workerPool struct {
	scratches  []workerScratch
	numWorkers int
	threshold  int
	enabled    bool

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newWorkerPool(enabled bool, workers, threshold int) *workerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if threshold < 1 {
		threshold = 1
	}
	scratches := make([]workerScratch, workers)
	for i := range scratches {
		scratches[i] = newWorkerScratch()
	}
	return &workerPool{
		scratches:  scratches,
		numWorkers: workers,
		threshold:  threshold,
		enabled:    enabled && workers > 1,
	}
}

func newWorkerScratch() workerScratch {
	return workerScratch{
		Neighbors:  make([]components.AgentID, 0, 64),
		Candidates: make([]systems.Candidate, 0, 64),
		Stimuli:    make(map[systems.Stimulus]float64, 8),
	}
}

// startWorkers launches persistent worker goroutines.
func (p *workerPool) startWorkers() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *workerPool) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *workerPool) worker(workerID int) {
	defer p.wg.Done()
	scratch := &p.scratches[workerID]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(scratch, chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// forEach runs fn over [0, n), fanning out when the pool is enabled and n
// reaches the threshold.
func (p *workerPool) forEach(n int, fn chunkFunc) {
	if n == 0 {
		return
	}
	if !p.enabled || n < p.threshold {
		// Single-threaded for small populations
		fn(&p.scratches[0], 0, n)
		return
	}

	// Ensure workers are running
	if !p.running {
		p.startWorkers()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	// Dispatch chunks to workers
	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		p.workChan <- workChunk{start: start, end: end, fn: fn}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}
}
