package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is a task's lifecycle state.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is one node in the task forest.
type Task struct {
	ID          string     `json:"id"`
	ParentID    string     `json:"parent_id,omitempty"`
	Description string     `json:"description"`
	AssignedTo  []string   `json:"assigned_to,omitempty"`
	Status      TaskStatus `json:"status"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledBy string     `json:"cancelled_by,omitempty"`
}

// terminal statuses are final; cancellation does not rewrite them.
func (s TaskStatus) terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskManager owns the task forest. Cancelling a task cascades to every
// non-terminal descendant and notifies the assigned agents.
type TaskManager struct {
	router *Router

	mu       sync.Mutex
	tasks    map[string]*Task
	children map[string][]string
	order    []string
}

func NewTaskManager(router *Router) *TaskManager {
	return &TaskManager{
		router:   router,
		tasks:    make(map[string]*Task),
		children: make(map[string][]string),
	}
}

// Create adds a task assigned to zero or more agents. An empty taskID
// gets a generated id; an empty parentID makes a root task.
func (m *TaskManager) Create(taskID, parentID, description string, assignedTo []string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if taskID == "" {
		taskID = uuid.NewString()
	} else if _, exists := m.tasks[taskID]; exists {
		return nil, fmt.Errorf("task '%s' already exists", taskID)
	}
	if parentID != "" {
		if _, ok := m.tasks[parentID]; !ok {
			return nil, fmt.Errorf("parent task '%s' not found", parentID)
		}
	}

	now := time.Now()
	task := &Task{
		ID:          taskID,
		ParentID:    parentID,
		Description: description,
		AssignedTo:  append([]string(nil), assignedTo...),
		Status:      TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.tasks[task.ID] = task
	m.order = append(m.order, task.ID)
	if parentID != "" {
		m.children[parentID] = append(m.children[parentID], task.ID)
	}

	snapshot := *task
	return &snapshot, nil
}

// Get returns a snapshot of the task.
func (m *TaskManager) Get(taskID string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Children returns the direct child ids of a task, in creation order.
func (m *TaskManager) Children(taskID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.children[taskID]))
	copy(out, m.children[taskID])
	return out
}

// Start marks a pending task running.
func (m *TaskManager) Start(taskID string) error {
	return m.transition(taskID, TaskRunning, nil, "")
}

// Complete marks a task completed with its result.
func (m *TaskManager) Complete(taskID string, result any) error {
	return m.transition(taskID, TaskCompleted, result, "")
}

// Fail marks a task failed.
func (m *TaskManager) Fail(taskID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return m.transition(taskID, TaskFailed, nil, msg)
}

func (m *TaskManager) transition(taskID string, status TaskStatus, result any, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("task '%s' not found", taskID)
	}
	if task.Status.terminal() {
		return fmt.Errorf("task '%s' is already %s", taskID, task.Status)
	}

	task.Status = status
	task.Result = result
	task.Error = errMsg
	task.UpdatedAt = time.Now()
	return nil
}

// Cancel cancels a task and every non-terminal descendant, depth first.
// Each cancelled task's assigned agents receive a cancel message carrying
// the reason. Returns the ids of the tasks actually cancelled.
func (m *TaskManager) Cancel(taskID, cancelledBy, reason string) ([]string, error) {
	m.mu.Lock()

	root, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("task '%s' not found", taskID)
	}

	var cancelled []*Task
	var walk func(t *Task)
	walk = func(t *Task) {
		if !t.Status.terminal() {
			t.Status = TaskCancelled
			t.CancelledBy = cancelledBy
			t.Error = reason
			t.UpdatedAt = time.Now()
			cancelled = append(cancelled, t)
		}
		for _, childID := range m.children[t.ID] {
			walk(m.tasks[childID])
		}
	}
	walk(root)
	m.mu.Unlock()

	ids := make([]string, 0, len(cancelled))
	for _, t := range cancelled {
		ids = append(ids, t.ID)
		if m.router == nil {
			continue
		}
		for _, agentName := range t.AssignedTo {
			m.router.Send(MessageCancel, cancelledBy, agentName,
				fmt.Sprintf("Task %s cancelled", t.ID),
				map[string]any{"task_id": t.ID, "reason": reason})
		}
	}
	return ids, nil
}

// Tasks returns snapshots of all tasks in creation order.
func (m *TaskManager) Tasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.tasks[id])
	}
	return out
}
