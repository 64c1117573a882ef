package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Task mirrors the backend task object.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	IsCompleted bool   `json:"is_completed"`
	OwnerID     string `json:"owner_id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	DueDate     string `json:"due_date,omitempty"`
}

// TaskCreate is the payload for creating a task.
type TaskCreate struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// TaskUpdate is the payload for updating a task; nil fields are left untouched.
type TaskUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	IsCompleted *bool   `json:"is_completed,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

// TaskClient is a thin pass-through over the per-subject task resource.
type TaskClient struct {
	executor *Executor
}

// NewTaskClient constructs a TaskClient.
func NewTaskClient(executor *Executor) *TaskClient {
	return &TaskClient{executor: executor}
}

func taskCollectionPath(subject string) string {
	return fmt.Sprintf("/api/%s/tasks", url.PathEscape(subject))
}

func taskPath(subject string, taskID string) string {
	return fmt.Sprintf("/api/%s/tasks/%s", url.PathEscape(subject), url.PathEscape(taskID))
}

func requireSubject(subject string) *Error {
	if strings.TrimSpace(subject) == "" {
		return newError(KindInvalidRequest, 0, "subject is required")
	}
	return nil
}

// List returns every task owned by the subject.
func (client *TaskClient) List(ctx context.Context, subject string) ([]Task, error) {
	if invalidErr := requireSubject(subject); invalidErr != nil {
		return nil, invalidErr
	}
	response, doErr := client.executor.Do(ctx, Request{Method: http.MethodGet, Path: taskCollectionPath(subject)})
	if doErr != nil {
		return nil, doErr
	}
	var tasks []Task
	if decodeErr := response.DecodeJSON(&tasks); decodeErr != nil {
		return nil, newError(KindServer, response.Status, "malformed task list payload")
	}
	return tasks, nil
}

// Create adds a new task for the subject.
func (client *TaskClient) Create(ctx context.Context, subject string, payload TaskCreate) (*Task, error) {
	if invalidErr := requireSubject(subject); invalidErr != nil {
		return nil, invalidErr
	}
	if strings.TrimSpace(payload.Title) == "" {
		return nil, newError(KindInvalidRequest, 0, "title is required")
	}
	return client.taskCall(ctx, http.MethodPost, taskCollectionPath(subject), payload)
}

// Get fetches one task by id.
func (client *TaskClient) Get(ctx context.Context, subject string, taskID string) (*Task, error) {
	if invalidErr := requireSubject(subject); invalidErr != nil {
		return nil, invalidErr
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, newError(KindInvalidRequest, 0, "task id is required")
	}
	return client.taskCall(ctx, http.MethodGet, taskPath(subject, taskID), nil)
}

// Update modifies one task.
func (client *TaskClient) Update(ctx context.Context, subject string, taskID string, payload TaskUpdate) (*Task, error) {
	if invalidErr := requireSubject(subject); invalidErr != nil {
		return nil, invalidErr
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, newError(KindInvalidRequest, 0, "task id is required")
	}
	return client.taskCall(ctx, http.MethodPut, taskPath(subject, taskID), payload)
}

// Delete removes one task.
func (client *TaskClient) Delete(ctx context.Context, subject string, taskID string) error {
	if invalidErr := requireSubject(subject); invalidErr != nil {
		return invalidErr
	}
	if strings.TrimSpace(taskID) == "" {
		return newError(KindInvalidRequest, 0, "task id is required")
	}
	_, doErr := client.executor.Do(ctx, Request{Method: http.MethodDelete, Path: taskPath(subject, taskID)})
	return doErr
}

// ToggleComplete flips the completion flag on one task.
func (client *TaskClient) ToggleComplete(ctx context.Context, subject string, taskID string, isCompleted bool) (*Task, error) {
	if invalidErr := requireSubject(subject); invalidErr != nil {
		return nil, invalidErr
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, newError(KindInvalidRequest, 0, "task id is required")
	}
	payload := map[string]bool{"is_completed": isCompleted}
	return client.taskCall(ctx, http.MethodPatch, taskPath(subject, taskID)+"/complete", payload)
}

func (client *TaskClient) taskCall(ctx context.Context, method string, path string, body any) (*Task, error) {
	response, doErr := client.executor.Do(ctx, Request{Method: method, Path: path, Body: body})
	if doErr != nil {
		return nil, doErr
	}
	var task Task
	if decodeErr := response.DecodeJSON(&task); decodeErr != nil {
		return nil, newError(KindServer, response.Status, "malformed task payload")
	}
	return &task, nil
}
