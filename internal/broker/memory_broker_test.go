package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_EnqueueDequeueAck(t *testing.T) {
	b := NewMemoryBroker()

	_, err := b.Enqueue(QueueAITasks, "process_due_ai_tasks", []byte("payload"), 10, time.Time{})
	require.NoError(t, err)

	job, err := b.Dequeue(QueueAITasks, "worker-1", time.Second, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "process_due_ai_tasks", job.TaskName)

	// Not visible again until ack/visibility expiry.
	empty, err := b.Dequeue(QueueAITasks, "worker-1", 50*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Nil(t, empty)

	require.NoError(t, b.Ack(job.ID))
}

func TestMemoryBroker_PriorityOrdering(t *testing.T) {
	b := NewMemoryBroker()

	_, err := b.Enqueue(QueueMaintenance, "low", nil, 1, time.Time{})
	require.NoError(t, err)
	_, err = b.Enqueue(QueueMaintenance, "high", nil, 9, time.Time{})
	require.NoError(t, err)

	job, err := b.Dequeue(QueueMaintenance, "w", time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "high", job.TaskName)
}

func TestMemoryBroker_NackRequeuesWithRetryCount(t *testing.T) {
	b := NewMemoryBroker()
	_, err := b.Enqueue(QueueFileTasks, "scan", nil, 3, time.Time{})
	require.NoError(t, err)

	job, err := b.Dequeue(QueueFileTasks, "w", time.Second, time.Second)
	require.NoError(t, err)
	require.NoError(t, b.Nack(job.ID, true))

	redelivered, err := b.Dequeue(QueueFileTasks, "w", time.Second, time.Second)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, 1, redelivered.RetryCount)
}

func TestMemoryBroker_VisibilityTimeoutRedelivers(t *testing.T) {
	b := NewMemoryBroker()
	_, err := b.Enqueue(QueueEmailTasks, "send", nil, 5, time.Time{})
	require.NoError(t, err)

	job, err := b.Dequeue(QueueEmailTasks, "w", time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	time.Sleep(20 * time.Millisecond)
	reaped, err := b.ReapExpired(QueueEmailTasks)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	redelivered, err := b.Dequeue(QueueEmailTasks, "w2", time.Second, time.Second)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
}

func TestMemoryBroker_QueueFullRejects(t *testing.T) {
	b := NewMemoryBroker()
	for i := 0; i < queueBlockLength; i++ {
		_, err := b.Enqueue(QueueSyncTasks, "t", nil, 1, time.Time{})
		require.NoError(t, err)
	}
	_, err := b.Enqueue(QueueSyncTasks, "overflow", nil, 1, time.Time{})
	assert.Error(t, err)
}
