package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countJob struct {
	name  string
	calls atomic.Int32
	block chan struct{}
}

func (j *countJob) Name() string { return j.name }

func (j *countJob) Run(ctx context.Context) error {
	j.calls.Add(1)
	if j.block != nil {
		<-j.block
	}
	return nil
}

func TestAddJob(t *testing.T) {
	c := NewCronScheduler()
	require.NoError(t, c.AddJob(&countJob{name: "refresh"}, "*/10 * * * *"))
	require.NoError(t, c.AddJob(&countJob{name: "cleanup"}, "@daily"))
	require.NoError(t, c.AddJob(&countJob{name: "disabled"}, " "))
	require.Error(t, c.AddJob(&countJob{name: "refresh"}, "* * * * *"))
	require.Error(t, c.AddJob(&countJob{name: "bad"}, "not a spec"))

	c.Start(context.Background())
	defer c.Stop()
	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "cleanup", entries[0].Name)
	assert.Equal(t, "refresh", entries[1].Name)
	assert.True(t, entries[1].Next.After(time.Now()))
}

func TestWrap_SkipsOverlappingRuns(t *testing.T) {
	c := NewCronScheduler()
	job := &countJob{name: "slow", block: make(chan struct{})}
	run := c.wrap(job, "* * * * *")

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	run()
	assert.Equal(t, int32(1), job.calls.Load())
	close(job.block)
	<-done
	run()
	assert.Equal(t, int32(2), job.calls.Load())
}
