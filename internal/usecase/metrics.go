package usecase

import "context"

// MetricsSummary represents aggregated classification insights.
type MetricsSummary struct {
	TotalRequests     int64   `json:"total_requests"`
	FailedRequests    int64   `json:"failed_requests"`
	ErrorRate         float64 `json:"error_rate"`
	AILabelled        int64   `json:"ai_labelled"`
	RealLabelled      int64   `json:"real_labelled"`
	AIShare           float64 `json:"ai_share"`
	AverageConfidence float64 `json:"average_confidence"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates classification metrics from persisted logs.
func (uc *ClassificationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrHistoryDisabled
	}
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:     aggregation.TotalCount,
		FailedRequests:    aggregation.ErrorCount,
		AILabelled:        aggregation.AICount,
		RealLabelled:      aggregation.RealCount,
		AverageConfidence: aggregation.AverageConfidence,
		AverageLatencyMs:  aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.ErrorRate = float64(aggregation.ErrorCount) / float64(aggregation.TotalCount)
	}
	if labelled := aggregation.AICount + aggregation.RealCount; labelled > 0 {
		summary.AIShare = float64(aggregation.AICount) / float64(labelled)
	}

	return summary, nil
}
