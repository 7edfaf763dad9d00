package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTransitionForwardPath(t *testing.T) {
	path := []string{
		JobStatusPending,
		JobStatusScript,
		JobStatusRenderVideo,
		JobStatusRenderThumbnail,
		JobStatusStoreArtifacts,
		JobStatusReadyForUpload,
		JobStatusPublishing,
		JobStatusCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, ValidTransition(path[i], path[i+1]),
			"%s -> %s must be legal", path[i], path[i+1])
	}
}

func TestValidTransitionNoSkipsOrBackwardMoves(t *testing.T) {
	assert.False(t, ValidTransition(JobStatusPending, JobStatusRenderVideo), "no stage skipping")
	assert.False(t, ValidTransition(JobStatusScript, JobStatusStoreArtifacts), "no stage skipping")
	assert.False(t, ValidTransition(JobStatusRenderVideo, JobStatusScript), "no backward moves")
	assert.False(t, ValidTransition(JobStatusReadyForUpload, JobStatusReadyForUpload), "no self loops")
}

func TestFailedReachableFromEveryNonTerminalStatus(t *testing.T) {
	nonTerminal := []string{
		JobStatusPending,
		JobStatusScript,
		JobStatusRenderVideo,
		JobStatusRenderThumbnail,
		JobStatusStoreArtifacts,
		JobStatusReadyForUpload,
		JobStatusPublishing,
	}
	for _, status := range nonTerminal {
		assert.True(t, ValidTransition(status, JobStatusFailed), "from %s", status)
	}
}

func TestTerminalStatusesNeverTransition(t *testing.T) {
	for _, terminal := range []string{JobStatusCompleted, JobStatusFailed} {
		assert.True(t, IsTerminalStatus(terminal))
		assert.False(t, ValidTransition(terminal, JobStatusFailed))
		assert.False(t, ValidTransition(terminal, JobStatusPending))
	}
	assert.False(t, IsTerminalStatus(JobStatusPublishing))
}

// The milestone values are a display contract; pin them.
func TestStageMilestones(t *testing.T) {
	assert.Equal(t, 25, StageMilestones[JobStatusScript])
	assert.Equal(t, 30, StageMilestones[JobStatusRenderVideo])
	assert.Equal(t, 70, StageMilestones["render_video_done"])
	assert.Equal(t, 80, StageMilestones[JobStatusRenderThumbnail])
	assert.Equal(t, 90, StageMilestones[JobStatusStoreArtifacts])
	assert.Equal(t, 95, StageMilestones["scheduled"])
	assert.Equal(t, 100, StageMilestones[JobStatusReadyForUpload])
}
