package engine

import (
	"fmt"

	"snq/internal/metrics"
)

// RunSlot is the one-per-worker job record (§3's "Run slot"): a
// worker mutates nothing but its own slot, and a Message view is
// built from it for the duration of a single callback invocation.
type RunSlot struct {
	Category string
	Command  string
	Pubkey   PubKey
	SN       bool
	Parts    [][]byte
	Callback Callback
}

type workerDone struct {
	idx      int
	category string
}

type worker struct {
	idx  int
	jobs chan *RunSlot
}

// WorkerPool is component H: N lazily-spawned worker goroutines plus
// the reserved/general capacity accounting from §4.4. The pool itself
// holds no mutex — every method is called only from the proxy
// goroutine, per the single-writer concurrency model in §5.
type WorkerPool struct {
	general int
	done    chan workerDone
	proxy   *Proxy

	workers []*worker
	idle    []int // stack of idle worker indices
	metrics *metrics.Metrics
}

func NewWorkerPool(general int, m *metrics.Metrics) *WorkerPool {
	return &WorkerPool{general: general, done: make(chan workerDone, 64), metrics: m}
}

func (wp *WorkerPool) maxWorkers(reg *Registry) int {
	total := wp.general
	reg.each(func(c *Category) { total += c.Reserved })
	return total
}

// generalInUse sums, across every category, the portion of its
// active threads beyond its own reserved allotment — the pool-wide
// consumption of the shared general capacity.
func (wp *WorkerPool) generalInUse(reg *Registry) int {
	inUse := 0
	reg.each(func(c *Category) {
		if over := c.activeThreads - c.Reserved; over > 0 {
			inUse += over
		}
	})
	return inUse
}

// dispatchable reports whether category c has room to run one more
// job right now, per §4.4's dispatch decision.
func (wp *WorkerPool) dispatchable(reg *Registry, c *Category) bool {
	reservedRemaining := c.Reserved - c.activeThreads
	if reservedRemaining > 0 {
		return true
	}
	return wp.generalInUse(reg) < wp.general
}

// Submit attempts to run job on category c immediately; if no
// capacity is available it is parked on c.pending (subject to the
// queue's overflow policy) and Submit returns false.
func (wp *WorkerPool) Submit(reg *Registry, c *Category, job pendingJob) bool {
	if !wp.dispatchable(reg, c) {
		kept := c.enqueue(job)
		if !kept && wp.metrics != nil {
			wp.metrics.IncQueueDrop()
		}
		return false
	}
	slot := &RunSlot{Category: c.Name, Command: job.cmd, Pubkey: job.pub, SN: job.sn, Parts: job.parts, Callback: job.cb}
	wp.run(reg, c, slot)
	return true
}

// run assigns slot to an idle worker, spawning a fresh one if the
// pool has not yet reached maxWorkers.
func (wp *WorkerPool) run(reg *Registry, c *Category, slot *RunSlot) {
	c.activeThreads++
	if wp.metrics != nil {
		wp.metrics.IncWorkerActive()
	}
	if n := len(wp.idle); n > 0 {
		idx := wp.idle[n-1]
		wp.idle = wp.idle[:n-1]
		wp.workers[idx].jobs <- slot
		return
	}
	if len(wp.workers) < wp.maxWorkers(reg) {
		w := &worker{idx: len(wp.workers), jobs: make(chan *RunSlot, 1)}
		wp.workers = append(wp.workers, w)
		if wp.metrics != nil {
			wp.metrics.IncWorkerSpawned()
		}
		go wp.loop(w)
		w.jobs <- slot
		return
	}
	panic(fmt.Sprintf("engine: dispatchable() said yes but no worker capacity for %q", c.Name))
}

// loop is one worker goroutine: wait for a job, build a Message view,
// invoke its callback (recovering and logging any panic, matching
// the "catch and log any user-raised failure" requirement of §4.4),
// then report idle and wait for the next job.
func (wp *WorkerPool) loop(w *worker) {
	for slot := range w.jobs {
		wp.runOne(w, slot)
		wp.done <- workerDone{idx: w.idx, category: slot.Category}
	}
}

func (wp *WorkerPool) runOne(w *worker, slot *RunSlot) {
	defer func() {
		if r := recover(); r != nil {
			wp.proxy.logf(logWarn, "callback panic in %s: %v", slot.Category, r)
		}
	}()
	if slot.Callback == nil {
		return
	}
	msg := &Message{
		Category:    slot.Category,
		Command:     slot.Command,
		Pubkey:      slot.Pubkey,
		ServiceNode: slot.SN,
		Parts:       slot.Parts,
		proxy:       wp.proxy,
	}
	slot.Callback(msg)
}

// OnComplete handles a worker-idle notification: decrements the
// finished category's active count, returns the worker to the idle
// pool, then tries to dequeue the next job — preferring the category
// the worker just finished (keeps caches warm) and otherwise visiting
// every category once in map order (Go's iteration order is already
// randomized per run, which serves as the round-robin tie-break).
func (wp *WorkerPool) OnComplete(reg *Registry, d workerDone) {
	if wp.metrics != nil {
		wp.metrics.DecWorkerActive()
	}
	wp.idle = append(wp.idle, d.idx)
	if c, ok := reg.category(d.category); ok {
		c.activeThreads--
		if wp.tryDequeue(reg, c) {
			return
		}
	}
	reg.each(func(c *Category) {
		if len(wp.idle) == 0 {
			return
		}
		wp.tryDequeue(reg, c)
	})
}

func (wp *WorkerPool) tryDequeue(reg *Registry, c *Category) bool {
	if len(wp.idle) == 0 || !wp.dispatchable(reg, c) {
		return false
	}
	job, ok := c.dequeue()
	if !ok {
		return false
	}
	slot := &RunSlot{Category: c.Name, Command: job.cmd, Pubkey: job.pub, SN: job.sn, Parts: job.parts, Callback: job.cb}
	wp.run(reg, c, slot)
	return true
}

// Quit instructs every spawned worker to stop; called once during
// proxy shutdown. Jobs still parked on a category's pending queue are
// not run, and Quit does not wait for a worker that is mid-callback.
func (wp *WorkerPool) Quit() {
	for _, w := range wp.workers {
		close(w.jobs)
	}
}
