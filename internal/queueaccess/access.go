package queueaccess

import (
	"context"
	"errors"
	"time"

	"herald/internal/api"
	"herald/internal/history"
	"herald/internal/queue"
	"herald/internal/workflow"
)

// ErrHistoryDisabled is returned by local access when no ledger is open.
var ErrHistoryDisabled = errors.New("history ledger is disabled")

// Access provides queue operations regardless of API or direct store backing.
type Access interface {
	Stats(ctx context.Context) (queue.Stats, error)
	List(ctx context.Context, statuses ...queue.Status) ([]queue.Post, error)
	Get(ctx context.Context, id string) (queue.Post, error)
	Add(ctx context.Context, draft queue.Draft) (string, error)
	Approve(ctx context.Context, id string) (bool, error)
	Reject(ctx context.Context, id string) (bool, error)
	Schedule(ctx context.Context, id string, at time.Time) (bool, error)
	PublishNow(ctx context.Context, id string) (queue.Post, error)
	History(ctx context.Context, id string) ([]history.Attempt, error)
}

// HistoryReader is the ledger query local access needs.
type HistoryReader interface {
	ForPost(ctx context.Context, postID string) ([]history.Attempt, error)
}

var _ Access = (*api.Client)(nil)

// NewAPIAccess returns an Access backed by the daemon API.
func NewAPIAccess(client *api.Client) Access {
	return client
}

// NewLocalAccess returns an Access that drives a processor in this process.
// reader may be nil when the ledger is disabled.
func NewLocalAccess(processor *workflow.Processor, reader HistoryReader) Access {
	return &localAccess{processor: processor, history: reader}
}

type localAccess struct {
	processor *workflow.Processor
	history   HistoryReader
}

func (a *localAccess) Stats(ctx context.Context) (queue.Stats, error) {
	return a.processor.GetStats(ctx)
}

func (a *localAccess) List(ctx context.Context, statuses ...queue.Status) ([]queue.Post, error) {
	return a.processor.List(ctx, statuses...)
}

func (a *localAccess) Get(ctx context.Context, id string) (queue.Post, error) {
	return a.processor.Get(ctx, id)
}

func (a *localAccess) Add(ctx context.Context, draft queue.Draft) (string, error) {
	return a.processor.AddToQueue(ctx, draft)
}

func (a *localAccess) Approve(ctx context.Context, id string) (bool, error) {
	return a.processor.ApprovePost(ctx, id)
}

func (a *localAccess) Reject(ctx context.Context, id string) (bool, error) {
	return a.processor.RejectPost(ctx, id)
}

func (a *localAccess) Schedule(ctx context.Context, id string, at time.Time) (bool, error) {
	return a.processor.SchedulePost(ctx, id, at)
}

func (a *localAccess) PublishNow(ctx context.Context, id string) (queue.Post, error) {
	return a.processor.PublishNow(ctx, id)
}

func (a *localAccess) History(ctx context.Context, id string) ([]history.Attempt, error) {
	if a.history == nil {
		return nil, ErrHistoryDisabled
	}
	return a.history.ForPost(ctx, id)
}
