package usecase

import (
	"context"
	"fmt"

	"VNFlow/pkg/queue"
)

// RefreshJobType is the queue message type for on-demand re-analysis.
const RefreshJobType = "analysis.refresh"

type refreshPayload struct {
	Symbol   string `json:"symbol"`
	DaysBack int    `json:"days_back"`
}

// RefreshJob drains queued refresh requests into the RefreshUseCase.
type RefreshJob struct {
	refresh *RefreshUseCase
}

func NewRefreshJob(refresh *RefreshUseCase) *RefreshJob {
	return &RefreshJob{refresh: refresh}
}

func (j *RefreshJob) Name() string { return "analysis-refresh" }

func (j *RefreshJob) Type() string { return RefreshJobType }

func (j *RefreshJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[refreshPayload](payload)
	if err != nil {
		return fmt.Errorf("refresh payload: %w", err)
	}
	_, err = j.refresh.Refresh(ctx, RefreshParams{Symbol: p.Symbol, DaysBack: p.DaysBack})
	return err
}

var _ queue.Job = (*RefreshJob)(nil)
