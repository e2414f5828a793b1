package storage

import (
	"time"

	"github.com/songzhibin97/mediaflow/types"
)

func newShared(id uint64) types.SharedWorkflow {
	return types.SharedWorkflow{
		ID:        id,
		Name:      "Sunset clip",
		Token:     "q1ZKy0lVsjI0MDDRUSpLLSrOzM9TsjLUUcrMS8lJLQIA",
		CreatedAt: time.Now().UnixMilli(),
	}
}

func newRunRecord(id string, finishedAt int64) types.RunRecord {
	return types.RunRecord{
		ID:    id,
		Name:  "Sunset clip",
		State: types.RunStatePartial,
		Order: []string{"prompt-1", "t2v-1"},
		Results: []types.ExecutionResult{
			{NodeID: "prompt-1", Status: types.StatusCompleted, Output: map[string]interface{}{"prompt": "sunset"}},
			{NodeID: "t2v-1", Status: types.StatusFailed, Error: "quota exceeded"},
		},
		StartedAt:  finishedAt - 1500,
		FinishedAt: finishedAt,
	}
}
