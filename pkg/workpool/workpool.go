// Package workpool runs blocking side effects off the scheduler loop.
//
// The scheduler never blocks: spawning a process, killing one or writing a
// scaling record is handed to the pool under a key. Jobs sharing a key run
// one at a time in submission order, so a worker's spawn always finishes
// before its kill starts and history rows land in decision order. Jobs with
// different keys run concurrently, at most size at a time.
//
//	Go(key, fn) ──► jobs chan ──► run() ──► lanes[key] ──► start() ──► goroutine
//	                                ▲                                    │
//	                                └──────────── done(key) ◄────────────┘
//
// Close cancels the context handed to running jobs, drops queued ones and
// waits for the running ones to return.
package workpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Job is a side effect. ctx is cancelled when the pool closes.
type Job func(ctx context.Context)

type submission struct {
	key string
	job Job
}

// lane is the FIFO of one key.
type lane []Job

func (l *lane) push(j Job) { *l = append(*l, j) }

func (l *lane) pop() Job {
	old := *l
	j := old[0]
	old[0] = nil
	*l = old[1:]
	return j
}

type Pool struct {
	name string
	size int
	log  *zap.SugaredLogger

	// owned by run
	lanes   map[string]*lane
	ready   []string
	running map[string]bool

	jobs   chan submission
	done   chan string
	close  chan struct{}
	closed chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New starts a pool running at most size jobs at once.
func New(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:    name,
		size:    size,
		log:     zap.S().Named(name),
		lanes:   make(map[string]*lane),
		running: make(map[string]bool),
		jobs:    make(chan submission),
		done:    make(chan string, size),
		close:   make(chan struct{}),
		closed:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go p.run()
	return p
}

// Go queues fn behind every earlier job of the same key. It reports false once
// the pool is closed, in which case fn never runs.
func (p *Pool) Go(key string, fn Job) bool {
	select {
	case p.jobs <- submission{key: key, job: fn}:
		return true
	case <-p.closed:
		return false
	}
}

// Close stops accepting jobs and waits for the running ones.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.cancel()
		close(p.close)
		<-p.closed
	})
}

func (p *Pool) run() {
	defer close(p.closed)
	for {
		select {
		case s := <-p.jobs:
			l, ok := p.lanes[s.key]
			if !ok {
				l = &lane{}
				p.lanes[s.key] = l
				if !p.running[s.key] {
					p.ready = append(p.ready, s.key)
				}
			}
			l.push(s.job)
			p.start()
		case key := <-p.done:
			delete(p.running, key)
			if _, queued := p.lanes[key]; queued {
				p.ready = append(p.ready, key)
			}
			p.start()
		case <-p.close:
			dropped := 0
			for _, l := range p.lanes {
				dropped += len(*l)
			}
			if dropped > 0 {
				p.log.Warnw("pool closed with queued jobs", "dropped", dropped)
			}
			// done is buffered for every running job
			p.wg.Wait()
			return
		}
	}
}

// start runs the head job of ready lanes while there is capacity.
func (p *Pool) start() {
	for len(p.running) < p.size && len(p.ready) > 0 {
		key := p.ready[0]
		p.ready = p.ready[1:]

		l := p.lanes[key]
		job := l.pop()
		if len(*l) == 0 {
			delete(p.lanes, key)
		}

		p.running[key] = true
		p.wg.Add(1)
		go p.exec(key, job)
	}
}

func (p *Pool) exec(key string, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Errorw("job panicked", "key", key, "panic", rec)
		}
		p.wg.Done()
		p.done <- key
	}()
	job(p.ctx)
}
