package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCompletes(t *testing.T) {
	m := NewManager()
	job, err := m.Run(context.Background(), "train", "forest", func(ctx context.Context, job *Job) (any, error) {
		job.SetProgress(0.5)
		return 42, nil
	})
	require.NoError(t, err)

	_, err = uuid.Parse(job.ID)
	assert.NoError(t, err)
	assert.Equal(t, JobCompleted, job.GetStatus())
	assert.Equal(t, 1.0, job.GetProgress())
	assert.Equal(t, 42, job.Result)
	assert.NotNil(t, job.EndTime)
	assert.Len(t, job.GetLogs(), 2)

	got, ok := m.GetJob(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)
}

func TestRunFails(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")
	job, err := m.Run(context.Background(), "train", "bayes", func(ctx context.Context, job *Job) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, JobFailed, job.GetStatus())
	assert.ErrorIs(t, job.GetError(), boom)
}

func TestCancelJob(t *testing.T) {
	m := NewManager()
	started := make(chan string)

	done := make(chan *Job)
	go func() {
		job, _ := m.Run(context.Background(), "train", "slow", func(ctx context.Context, job *Job) (any, error) {
			started <- job.ID
			<-ctx.Done()
			return nil, ctx.Err()
		})
		done <- job
	}()

	id := <-started
	require.NoError(t, m.CancelJob(id))
	job := <-done
	assert.Equal(t, JobCancelled, job.GetStatus())

	assert.Error(t, m.CancelJob(id))
	assert.Error(t, m.CancelJob("missing"))
}

func TestListJobsInCreationOrder(t *testing.T) {
	m := NewManager()
	a := m.CreateJob("train", "a")
	b := m.CreateJob("train", "b")
	c := m.CreateJob("train", "c")

	jobs := m.ListJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
}
