package job

import (
	"context"

	"github.com/funtusov/telequery/internal/service"
)

// ReindexJob rebuilds the whole vector index from scratch. The rebuild is
// atomic inside IndexService, so queries keep hitting the old index until the
// swap.
type ReindexJob struct {
	index *service.IndexService
}

func NewReindexJob(index *service.IndexService) *ReindexJob {
	return &ReindexJob{index: index}
}

func (j *ReindexJob) Name() string {
	return "vector_reindex"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	_, err := j.index.RebuildAll(ctx)
	return err
}
