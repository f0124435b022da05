package api

import (
	"time"

	"herald/internal/history"
	"herald/internal/preflight"
	"herald/internal/queue"
	"herald/internal/workflow"
)

// StatusResponse aggregates daemon runtime information.
type StatusResponse struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	StartedAt    *time.Time             `json:"startedAt,omitempty"`
	QueueFile    string                 `json:"queueFile"`
	LockFilePath string                 `json:"lockFilePath"`
	HistoryPath  string                 `json:"historyPath,omitempty"`
	Platforms    []queue.Platform       `json:"platforms"`
	Processor    workflow.StatusSummary `json:"processor"`
	Preflight    []preflight.Result     `json:"preflight,omitempty"`
}

// QueueListResponse wraps a collection of posts.
type QueueListResponse struct {
	Items []queue.Post `json:"items"`
}

// QueueItemResponse wraps a single post.
type QueueItemResponse struct {
	Item queue.Post `json:"item"`
}

// AddPostResponse returns the id assigned to a new post.
type AddPostResponse struct {
	ID string `json:"id"`
}

// ScheduleRequest carries the new scheduled time for a post.
type ScheduleRequest struct {
	ScheduledTime time.Time `json:"scheduledTime"`
}

// ActionResponse reports whether an admin action changed the queue.
type ActionResponse struct {
	ID      string `json:"id"`
	Changed bool   `json:"changed"`
}

// HistoryResponse lists ledger rows for one post, oldest first.
type HistoryResponse struct {
	PostID   string            `json:"postId"`
	Attempts []history.Attempt `json:"attempts"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
