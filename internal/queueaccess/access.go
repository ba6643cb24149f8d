// Package queueaccess lets CLI commands operate on the queue whether or
// not the daemon is running: IPC-backed access when the socket answers,
// direct repository access otherwise. Capturing a document must never
// depend on a live daemon or a reachable server.
package queueaccess

import (
	"context"

	"docdrop/internal/ipc"
	"docdrop/internal/queue"
	"docdrop/internal/repo"
)

// Access provides queue operations regardless of IPC or direct store backing.
type Access interface {
	Enqueue(ctx context.Context, path string, meta queue.Metadata) (ipc.QueueItem, error)
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]ipc.QueueItem, error)
	Describe(ctx context.Context, id int64) (*ipc.QueueItem, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	Cancel(ctx context.Context, id int64) error
	Remove(ctx context.Context, id int64) error
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewRepoAccess returns an Access backed by the repository directly.
func NewRepoAccess(queueRepo *repo.Repository) Access {
	return &repoAccess{repo: queueRepo}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Enqueue(_ context.Context, path string, meta queue.Metadata) (ipc.QueueItem, error) {
	resp, err := a.client.Add(ipc.AddRequest{
		Path:            path,
		Title:           meta.Title,
		Tags:            meta.Tags,
		DocumentTypeID:  meta.DocumentTypeID,
		CorrespondentID: meta.CorrespondentID,
	})
	if err != nil {
		return ipc.QueueItem{}, err
	}
	return resp.Item, nil
}

func (a *ipcAccess) Stats(_ context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.QueueStats, nil
}

func (a *ipcAccess) List(_ context.Context, statuses []string) ([]ipc.QueueItem, error) {
	resp, err := a.client.QueueList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *ipcAccess) Describe(_ context.Context, id int64) (*ipc.QueueItem, error) {
	resp, err := a.client.QueueDescribe(id)
	if err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

func (a *ipcAccess) Retry(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueRetry(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Cancel(_ context.Context, id int64) error {
	_, err := a.client.QueueCancel(id)
	return err
}

func (a *ipcAccess) Remove(_ context.Context, id int64) error {
	_, err := a.client.QueueRemove(id)
	return err
}

func (a *ipcAccess) ClearCompleted(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClearCompleted()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ClearFailed(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClearFailed()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) Health(_ context.Context) (queue.HealthSummary, error) {
	resp, err := a.client.QueueHealth()
	if err != nil {
		return queue.HealthSummary{}, err
	}
	return queue.HealthSummary{
		Total:     resp.Total,
		Pending:   resp.Pending,
		Uploading: resp.Uploading,
		Completed: resp.Completed,
		Failed:    resp.Failed,
		Cancelled: resp.Cancelled,
	}, nil
}

type repoAccess struct {
	repo *repo.Repository
}

func (a *repoAccess) Enqueue(ctx context.Context, path string, meta queue.Metadata) (ipc.QueueItem, error) {
	item, err := a.repo.Enqueue(ctx, path, meta)
	if err != nil {
		return ipc.QueueItem{}, err
	}
	return ipc.FromQueueItem(item), nil
}

func (a *repoAccess) Stats(ctx context.Context) (map[string]int, error) {
	health, err := a.repo.Health(ctx)
	if err != nil {
		return nil, err
	}
	stats := map[string]int{}
	if health.Pending > 0 {
		stats[string(queue.StatusPending)] = health.Pending
	}
	if health.Uploading > 0 {
		stats[string(queue.StatusUploading)] = health.Uploading
	}
	if health.Completed > 0 {
		stats[string(queue.StatusCompleted)] = health.Completed
	}
	if health.Failed > 0 {
		stats[string(queue.StatusFailed)] = health.Failed
	}
	if health.Cancelled > 0 {
		stats[string(queue.StatusCancelled)] = health.Cancelled
	}
	return stats, nil
}

func (a *repoAccess) List(ctx context.Context, statuses []string) ([]ipc.QueueItem, error) {
	parsed := make([]queue.Status, 0, len(statuses))
	for _, status := range statuses {
		if s, ok := queue.ParseStatus(status); ok {
			parsed = append(parsed, s)
		}
	}
	items, err := a.repo.List(ctx, parsed...)
	if err != nil {
		return nil, err
	}
	dtos := make([]ipc.QueueItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		dtos = append(dtos, ipc.FromQueueItem(item))
	}
	return dtos, nil
}

func (a *repoAccess) Describe(ctx context.Context, id int64) (*ipc.QueueItem, error) {
	item, err := a.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := ipc.FromQueueItem(item)
	return &dto, nil
}

func (a *repoAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.repo.Retry(ctx, ids...)
}

func (a *repoAccess) Cancel(ctx context.Context, id int64) error {
	return a.repo.Cancel(ctx, id)
}

func (a *repoAccess) Remove(ctx context.Context, id int64) error {
	return a.repo.Remove(ctx, id)
}

func (a *repoAccess) ClearCompleted(ctx context.Context) (int64, error) {
	return a.repo.ClearCompleted(ctx)
}

func (a *repoAccess) ClearFailed(ctx context.Context) (int64, error) {
	return a.repo.ClearFailed(ctx)
}

func (a *repoAccess) Health(ctx context.Context) (queue.HealthSummary, error) {
	return a.repo.Health(ctx)
}
