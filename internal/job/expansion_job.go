package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/funtusov/telequery/internal/service"
)

// ExpansionJob drains a slice of the expansion backlog and refreshes the
// index entry of every message it expanded, so new expansions become
// searchable without waiting for the nightly rebuild.
type ExpansionJob struct {
	expansion *service.ExpansionService
	index     *service.IndexService
}

func NewExpansionJob(expansion *service.ExpansionService, index *service.IndexService) *ExpansionJob {
	return &ExpansionJob{expansion: expansion, index: index}
}

func (j *ExpansionJob) Name() string {
	return "message_expansion"
}

func (j *ExpansionJob) Run(ctx context.Context) error {
	report, err := j.expansion.RunBatch(ctx)
	if err != nil {
		return err
	}
	if j.index == nil {
		return nil
	}
	logger := logutil.GetLogger(ctx)
	for _, id := range report.SucceededIDs {
		if err := j.index.UpsertMessage(ctx, id); err != nil {
			// Index refresh is best effort; the rebuild job will catch up.
			logger.Warn("index refresh failed", zap.String("message_id", id), zap.Error(err))
		}
	}
	return nil
}
