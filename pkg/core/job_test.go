package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_Values(t *testing.T) {
	assert.Equal(t, JobStatus("pending"), StatusPending)
	assert.Equal(t, JobStatus("running"), StatusRunning)
	assert.Equal(t, JobStatus("completed"), StatusCompleted)
	assert.Equal(t, JobStatus("failed"), StatusFailed)
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestJobRecord_Defaults(t *testing.T) {
	job := &JobRecord{}
	assert.Empty(t, job.ID)
	assert.Empty(t, job.Key)
	assert.Equal(t, JobStatus(""), job.Status)
	assert.Nil(t, job.Result)
	assert.Nil(t, job.StartedAt)
}

func TestModes(t *testing.T) {
	assert.Equal(t, Mode("serialized"), ModeSerialized)
	assert.Equal(t, Mode("unsafe"), ModeUnsafe)
}
