package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"

	"github.com/docuchat/docuchat/internal/models"
)

func TestConvertTaskInfo(t *testing.T) {
	finished := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		info       *asynq.TaskInfo
		wantStatus models.TaskStatus
		wantError  string
	}{
		{
			name:       "pending",
			info:       &asynq.TaskInfo{ID: "t1", State: asynq.TaskStatePending},
			wantStatus: models.TaskPending,
		},
		{
			name:       "scheduled maps to pending",
			info:       &asynq.TaskInfo{ID: "t2", State: asynq.TaskStateScheduled},
			wantStatus: models.TaskPending,
		},
		{
			name:       "active",
			info:       &asynq.TaskInfo{ID: "t3", State: asynq.TaskStateActive},
			wantStatus: models.TaskStarted,
		},
		{
			name:       "completed",
			info:       &asynq.TaskInfo{ID: "t4", State: asynq.TaskStateCompleted, CompletedAt: finished},
			wantStatus: models.TaskSuccess,
		},
		{
			name:       "retry maps to failure",
			info:       &asynq.TaskInfo{ID: "t5", State: asynq.TaskStateRetry, LastErr: "boom"},
			wantStatus: models.TaskFailure,
			wantError:  "boom",
		},
		{
			name:       "archived maps to failure",
			info:       &asynq.TaskInfo{ID: "t6", State: asynq.TaskStateArchived, LastErr: "gave up"},
			wantStatus: models.TaskFailure,
			wantError:  "gave up",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := convertTaskInfo(tc.info)
			assert.Equal(t, tc.info.ID, task.TaskID)
			assert.Equal(t, tc.wantStatus, task.Status)
			assert.Equal(t, tc.wantError, task.Error)
			if tc.info.State == asynq.TaskStateCompleted {
				assert.Equal(t, finished, task.FinishedAt)
			}
		})
	}
}
