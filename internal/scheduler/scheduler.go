package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facedetect"
	"github.com/kozaktomas/class-attendance/internal/verification"
)

// ErrQueueFull is returned by Enqueue when the bounded queue is at
// capacity. The caller drops the frame or tells the client to retry; the
// signaling path is never blocked.
var ErrQueueFull = errors.New("frame queue full")

// ErrStopped is returned by Enqueue after the scheduler has been stopped.
var ErrStopped = errors.New("scheduler stopped")

// persistTimeout bounds the attendance write after verification. Kept
// separate from the phase budget so a PersistAlways job that ran over
// budget can still store its match.
const persistTimeout = 5 * time.Second

// CacheProvider hands out the embedding cache for a class.
type CacheProvider interface {
	ForClass(ctx context.Context, classID string) (*verification.EmbeddingCache, error)
}

// Recorder converts a verified match into an idempotent attendance
// decision. Implemented by the attendance session manager.
type Recorder interface {
	RecordMatch(ctx context.Context, sessionID, studentID string, checkIn time.Time, score, quality float64) (*database.AttendanceRecord, error)
}

// Result is the outcome of one processed job, delivered to the result sink
// (which routes it back to the capturing client).
type Result struct {
	Job       *Job
	Faces     int
	Matches   []verification.Match
	Records   []database.AttendanceRecord // persisted this job
	Duplicate []string                    // students already recorded earlier
	Elapsed   time.Duration
	TimedOut  bool
	Err       error
}

// ResultFunc receives results as jobs complete. Called from worker
// goroutines; implementations must not block.
type ResultFunc func(Result)

// Scheduler is the single consumer of the frame queue. It pops the
// highest-priority job whose phase still has a free worker slot, verifies
// it under the phase budget, and applies the phase persist policy. A job
// already running is never preempted by a higher-priority arrival.
type Scheduler struct {
	detector   facedetect.Detector
	caches     CacheProvider
	recorder   Recorder
	sink       ResultFunc
	capacity   int
	maxWorkers int

	mu           sync.Mutex
	cond         *sync.Cond
	queue        jobQueue
	running      map[int]int // phase rank -> jobs currently running
	runningTotal int
	seq          uint64
	closed       bool

	wg sync.WaitGroup
}

// New creates a scheduler. capacity bounds the queue; maxWorkers caps
// total concurrency across phases.
func New(detector facedetect.Detector, caches CacheProvider, recorder Recorder, sink ResultFunc, capacity, maxWorkers int) *Scheduler {
	if capacity < 1 {
		capacity = 1
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	s := &Scheduler{
		detector:   detector,
		caches:     caches,
		recorder:   recorder,
		sink:       sink,
		capacity:   capacity,
		maxWorkers: maxWorkers,
		running:    make(map[int]int),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the dispatch loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.dispatchLoop()
}

// Stop rejects further enqueues, drains running jobs, and returns once the
// dispatch loop has exited. Queued but unstarted jobs are dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// Enqueue adds a job to the queue. Never blocks: a full queue returns
// ErrQueueFull immediately.
func (s *Scheduler) Enqueue(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStopped
	}
	if len(s.queue) >= s.capacity {
		return ErrQueueFull
	}

	s.seq++
	job.seq = s.seq
	job.EnqueuedAt = time.Now()
	heap.Push(&s.queue, job)
	s.cond.Signal()
	return nil
}

// QueueLen returns the number of queued (not yet running) jobs.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// dispatchLoop pops runnable jobs and fans them out to workers. It holds
// the lock only while selecting; verification runs outside it.
func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			// Wait for in-flight workers before exiting.
			s.waitForWorkers()
			return
		}
		job := s.takeRunnableLocked()
		if job == nil {
			s.cond.Wait()
			continue
		}

		s.running[job.Phase.Rank]++
		s.runningTotal++
		s.wg.Add(1)
		go s.runJob(job)
	}
}

func (s *Scheduler) waitForWorkers() {
	s.mu.Lock()
	for s.runningTotal > 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// takeRunnableLocked removes and returns the highest-priority job whose
// phase has a free worker slot, or nil when nothing can start. Jobs whose
// phase is saturated stay queued; a lower-priority job from a different
// phase may start ahead of them, which is the intended fan-out behavior,
// not a priority inversion: the saturated phase already uses its full
// allowance.
func (s *Scheduler) takeRunnableLocked() *Job {
	if s.runningTotal >= s.maxWorkers {
		return nil
	}

	var skipped []*Job
	var picked *Job
	for len(s.queue) > 0 {
		job := heap.Pop(&s.queue).(*Job)
		if s.running[job.Phase.Rank] < job.Phase.Workers {
			picked = job
			break
		}
		skipped = append(skipped, job)
	}
	for _, job := range skipped {
		heap.Push(&s.queue, job)
	}
	return picked
}

func (s *Scheduler) runJob(job *Job) {
	defer s.wg.Done()

	result := s.process(job)

	s.mu.Lock()
	s.running[job.Phase.Rank]--
	s.runningTotal--
	s.cond.Broadcast()
	s.mu.Unlock()

	if result.Err != nil {
		log.Printf("frame job failed: session=%s client=%s: %v", job.SessionID, job.ClientID, result.Err)
	}
	if s.sink != nil {
		s.sink(result)
	}
}

// process runs detection and matching under the phase budget, then applies
// the persist policy.
func (s *Scheduler) process(job *Job) Result {
	result := Result{Job: job}

	ctx, cancel := context.WithTimeout(context.Background(), job.Phase.Budget)
	defer cancel()

	start := time.Now()
	faces, err := s.detector.DetectAndEncode(ctx, job.Frame)
	result.Elapsed = time.Since(start)
	result.TimedOut = errors.Is(err, context.DeadlineExceeded) || result.Elapsed > job.Phase.Budget

	if err != nil {
		if errors.Is(err, facedetect.ErrNoFaceFound) {
			// Empty frame, nothing to match. Not an error.
			return result
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// Budget exhausted before detection finished; per phase
			// policy this is "not processed within budget".
			return result
		}
		result.Err = err
		return result
	}

	result.Faces = len(faces)

	// Matching still happens after a budget overrun (the always and
	// match_only policies persist such matches), so the cache fetch must
	// not ride on the possibly expired job context.
	cacheCtx, cacheCancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cacheCancel()

	cache, err := s.caches.ForClass(cacheCtx, job.ClassID)
	if err != nil {
		result.Err = err
		return result
	}

	embeddings := make([][]float32, len(faces))
	for i, f := range faces {
		embeddings[i] = f.Embedding
	}
	result.Matches = verification.ResolveFrame(cache, embeddings, job.Phase.Threshold)

	if !s.shouldPersist(job.Phase, result) {
		return result
	}

	// Persistence gets its own deadline: a PersistAlways job that blew the
	// detection budget still stores its matches.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), persistTimeout)
	defer persistCancel()

	for _, match := range result.Matches {
		record, err := s.recorder.RecordMatch(persistCtx, job.SessionID, match.StudentID, job.CapturedAt, match.Score, job.QualityScore)
		if err != nil {
			result.Err = errors.Join(result.Err, err)
			continue
		}
		if record == nil {
			// Already recorded earlier in the session; benign.
			result.Duplicate = append(result.Duplicate, match.StudentID)
			continue
		}
		result.Records = append(result.Records, *record)
	}
	return result
}

func (s *Scheduler) shouldPersist(phase Phase, result Result) bool {
	if len(result.Matches) == 0 {
		// Unmatched faces never produce records regardless of policy.
		return false
	}
	switch phase.Persist {
	case PersistWithinBudget:
		return !result.TimedOut
	case PersistAlways, PersistMatchOnly:
		return true
	default:
		return false
	}
}
