package broker

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/taskerr"
)

// priorityQueue implements heap.Interface, ordering by priority (higher
// first) then FIFO (earlier EnqueuedAt first) on ties. Grounded directly on
// the teacher's scheduler.TaskQueue heap, without the anti-starvation aging
// term (MemoryBroker is for tests/single-node use, not production backpressure).
type priorityQueue []*Job

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority > pq[j].Priority
	}
	return pq[i].EnqueuedAt.Before(pq[j].EnqueuedAt)
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)   { *pq = append(*pq, x.(*Job)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

type inflight struct {
	job      *Job
	deadline time.Time
}

// MemoryBroker is an in-process Broker implementation, used in tests and
// single-node deployments without a Redis dependency.
type MemoryBroker struct {
	mu       sync.Mutex
	ready    map[QueueName]*priorityQueue
	inflight map[string]inflight
}

// NewMemoryBroker returns a broker with the five stable queues pre-created.
func NewMemoryBroker() *MemoryBroker {
	m := &MemoryBroker{
		ready:    make(map[QueueName]*priorityQueue),
		inflight: make(map[string]inflight),
	}
	for _, q := range AllQueues {
		pq := priorityQueue{}
		heap.Init(&pq)
		m.ready[q] = &pq
	}
	return m
}

func (m *MemoryBroker) Enqueue(queue QueueName, taskName string, payload []byte, priority int, eta time.Time) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pq, ok := m.ready[queue]
	if !ok {
		return nil, taskerr.Wrap(taskerr.ErrNoSuchQueue, string(queue))
	}
	if pq.Len() >= queueBlockLength {
		return nil, taskerr.Wrap(taskerr.ErrQueueFull, string(queue))
	}

	job := &Job{
		ID:         uuid.NewString(),
		Queue:      queue,
		TaskName:   taskName,
		Payload:    payload,
		Priority:   priority,
		ETA:        eta,
		EnqueuedAt: time.Now().UTC(),
	}
	heap.Push(pq, job)
	return job, nil
}

func (m *MemoryBroker) Dequeue(queue QueueName, workerID string, timeout, visibility time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		if job := m.tryPop(queue, workerID, visibility); job != nil {
			return job, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (m *MemoryBroker) tryPop(queue QueueName, workerID string, visibility time.Duration) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	pq, ok := m.ready[queue]
	if !ok || pq.Len() == 0 {
		return nil
	}
	now := time.Now()
	// Peek without popping if the earliest-ETA candidate isn't ready yet.
	// Scan linearly since this path is test/single-node only.
	var chosen int = -1
	for i, j := range *pq {
		if !j.ETA.IsZero() && j.ETA.After(now) {
			continue
		}
		if chosen == -1 || pq.Less(i, chosen) {
			chosen = i
		}
	}
	if chosen == -1 {
		return nil
	}
	job := (*pq)[chosen]
	heap.Remove(pq, chosen)
	m.inflight[job.ID] = inflight{job: job, deadline: now.Add(visibility)}
	return job
}

func (m *MemoryBroker) Ack(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, jobID)
	return nil
}

func (m *MemoryBroker) Nack(jobID string, requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.inflight[jobID]
	if !ok {
		return nil
	}
	delete(m.inflight, jobID)
	if !requeue {
		return nil
	}
	rec.job.RetryCount++
	heap.Push(m.ready[rec.job.Queue], rec.job)
	return nil
}

func (m *MemoryBroker) QueueLength(queue QueueName) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pq, ok := m.ready[queue]
	if !ok {
		return 0, taskerr.Wrap(taskerr.ErrNoSuchQueue, string(queue))
	}
	count := pq.Len()
	for _, rec := range m.inflight {
		if rec.job.Queue == queue {
			count++
		}
	}
	return count, nil
}

// ReapExpired mirrors RedisBroker.ReapExpired for the in-memory backend.
func (m *MemoryBroker) ReapExpired(queue QueueName) (int, error) {
	m.mu.Lock()
	now := time.Now()
	var expired []string
	for id, rec := range m.inflight {
		if rec.job.Queue == queue && now.After(rec.deadline) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		if err := m.Nack(id, true); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}
