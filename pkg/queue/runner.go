package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/agentsdk/pkg/protocol"
	"github.com/kadirpekel/agentsdk/pkg/runtime"
)

// RunPayload is the job payload for durable agent runs.
type RunPayload struct {
	Task      string `json:"task"`
	SessionID string `json:"session_id,omitempty"`
}

// EncodeRunPayload serializes a run submission.
func EncodeRunPayload(task, sessionID string) ([]byte, error) {
	return json.Marshal(RunPayload{Task: task, SessionID: sessionID})
}

// RuntimeHandler adapts a planner-executor runtime into a queue handler.
// Each job becomes one run; the run id is minted per attempt so retried
// jobs are distinguishable in traces and history.
func RuntimeHandler(rt *runtime.PlannerExecutorRuntime) Handler {
	return func(ctx context.Context, job Job) (any, error) {
		var payload RunPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("invalid run payload for job %s: %w", job.ID, err)
		}
		if payload.Task == "" {
			return nil, fmt.Errorf("job %s has no task", job.ID)
		}

		messages, err := rt.Run(ctx, payload.Task, payload.SessionID, "")
		if err != nil {
			return nil, err
		}
		return messages, nil
	}
}

// FinalMessage extracts the final execution message from a resolved run
// result, when present.
func FinalMessage(result Result) (protocol.Message, bool) {
	messages, ok := result.Output.([]protocol.Message)
	if !ok || len(messages) == 0 {
		return protocol.Message{}, false
	}
	return messages[len(messages)-1], true
}
