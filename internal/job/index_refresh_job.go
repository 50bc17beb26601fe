package job

import (
	"context"
)

// IndexLoader is satisfied by the similarity index.
type IndexLoader interface {
	Load(ctx context.Context) error
}

// IndexRefreshJob reloads the in-memory index so it converges with storage.
type IndexRefreshJob struct {
	index IndexLoader
}

func NewIndexRefreshJob(index IndexLoader) *IndexRefreshJob {
	return &IndexRefreshJob{index: index}
}

func (j *IndexRefreshJob) Name() string {
	return "index_refresh"
}

func (j *IndexRefreshJob) Run(ctx context.Context) error {
	if j.index == nil {
		return nil
	}
	return j.index.Load(ctx)
}
