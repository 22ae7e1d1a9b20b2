// Package generation dispatches task generation requests and reconciles their
// results with the local task collection.
package generation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// Classification is the recognized shape of a generation response.
// It is one of TaskList, EmptyList, WrappedTasks, TaskIDList or AsyncJob.
type Classification interface {
	classification()
}

// TaskList is a non-empty array of full tasks: the job completed synchronously.
type TaskList struct {
	Tasks []models.Task
}

// EmptyList is an empty array or an empty wrapper. The tasks may not be visible yet.
type EmptyList struct{}

// WrappedTasks is an object carrying the tasks under a "tasks" field.
type WrappedTasks struct {
	Tasks []models.Task
}

// TaskIDList is an object carrying the created task identities under "task_ids".
type TaskIDList struct {
	IDs []string
}

// AsyncJob means the work was queued, or the shape was not recognized.
// Either way the result has to be discovered by polling.
type AsyncJob struct {
	JobID        string
	Status       string
	Unrecognized bool
}

func (TaskList) classification()     {}
func (EmptyList) classification()    {}
func (WrappedTasks) classification() {}
func (TaskIDList) classification()   {}
func (AsyncJob) classification()     {}

// asyncStatuses are status markers that indicate queued work.
var asyncStatuses = map[string]bool{
	"processing": true,
	"queued":     true,
	"accepted":   true,
	"pending":    true,
}

// asyncMessageHints are substrings of a message that indicate queued work.
var asyncMessageHints = []string{"background", "queued"}

// Classify maps a raw generation response to exactly one Classification.
// It never fails: anything it cannot interpret becomes AsyncJob{Unrecognized: true}.
func Classify(statusCode int, body []byte) Classification {
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		tasks, ok := decodeTasks(body)
		switch {
		case ok && len(tasks) == 0:
			return EmptyList{}
		case ok:
			return TaskList{Tasks: tasks}
		}
		return unrecognized(statusCode)
	}

	var obj map[string]json.RawMessage
	if len(body) == 0 || body[0] != '{' || json.Unmarshal(body, &obj) != nil {
		return unrecognized(statusCode)
	}

	if raw, ok := obj["tasks"]; ok {
		if tasks, ok := decodeTasks(raw); ok {
			if len(tasks) == 0 {
				return EmptyList{}
			}
			return WrappedTasks{Tasks: tasks}
		}
	}

	if raw, ok := obj["task_ids"]; ok {
		if ids, ok := decodeIDs(raw); ok {
			if len(ids) == 0 {
				return EmptyList{}
			}
			return TaskIDList{IDs: ids}
		}
	}

	job := AsyncJob{
		JobID:  stringField(obj, "job_id"),
		Status: stringField(obj, "status"),
	}
	if job.JobID == "" {
		job.JobID = stringField(obj, "task_id")
	}
	if isAsync(statusCode, obj, job) {
		return job
	}
	job.Unrecognized = true
	return job
}

func isAsync(statusCode int, obj map[string]json.RawMessage, job AsyncJob) bool {
	if statusCode == http.StatusAccepted || job.JobID != "" {
		return true
	}
	if asyncStatuses[strings.ToLower(job.Status)] {
		return true
	}
	msg := strings.ToLower(stringField(obj, "message"))
	for _, hint := range asyncMessageHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func unrecognized(statusCode int) AsyncJob {
	return AsyncJob{Unrecognized: statusCode != http.StatusAccepted}
}

// decodeTasks accepts an array whose every element is a task with an identity.
func decodeTasks(raw json.RawMessage) ([]models.Task, bool) {
	var tasks []models.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, false
	}
	for _, t := range tasks {
		if t.ID == "" {
			return nil, false
		}
	}
	return tasks, true
}

// decodeIDs accepts an array of strings or numbers.
func decodeIDs(raw json.RawMessage) ([]string, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s != "" {
				ids = append(ids, s)
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return nil, false
		}
		ids = append(ids, n.String())
	}
	return ids, true
}

// stringField returns obj[key] as a string, accepting numbers too.
func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
