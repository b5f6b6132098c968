package taskqueue_test

import (
	"testing"

	"github.com/alexmihai1804/autowatering/pkg/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DequeueIsFIFO(t *testing.T) {
	q := taskqueue.New()
	q.Enqueue(taskqueue.Task{ChannelID: 1})
	q.Enqueue(taskqueue.Task{ChannelID: 2})
	q.Enqueue(taskqueue.Task{ChannelID: 3})

	first, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, first.ChannelID)

	second, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 2, second.ChannelID)
}

func TestQueue_AssignsCorrelationIDWhenMissing(t *testing.T) {
	q := taskqueue.New()
	t1 := q.Enqueue(taskqueue.Task{ChannelID: 0})
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", t1.CorrelationID.String())
}

func TestQueue_DequeueEmptyErrors(t *testing.T) {
	q := taskqueue.New()
	_, err := q.Dequeue()
	assert.Error(t, err)
}

func TestQueue_DiscardAllReturnsCount(t *testing.T) {
	q := taskqueue.New()
	q.Enqueue(taskqueue.Task{ChannelID: 0})
	q.Enqueue(taskqueue.Task{ChannelID: 1})
	assert.Equal(t, 2, q.DiscardAll())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_SameChannelTasksNotCoalesced(t *testing.T) {
	q := taskqueue.New()
	q.Enqueue(taskqueue.Task{ChannelID: 4})
	q.Enqueue(taskqueue.Task{ChannelID: 4})
	assert.Equal(t, 2, q.Len())
}
