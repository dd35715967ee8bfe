package domain

import "time"

// OrphanFlowStats summarizes one flow's stuck processing records.
type OrphanFlowStats struct {
	FlowName      string    `json:"flow_name"`
	Count         int64     `json:"orphaned_count"`
	OldestClaim   time.Time `json:"oldest_claim"`
	NewestClaim   time.Time `json:"newest_claim"`
	AvgHoursStuck float64   `json:"avg_hours_stuck"`
}

// OrphanReport is the output of an orphan analysis.
type OrphanReport struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	InstanceID    string            `json:"instance_id"`
	TotalOrphaned int64             `json:"total_orphaned_records"`
	ByFlow        []OrphanFlowStats `json:"orphaned_by_flow"`
}

// FlowPerformance aggregates one flow's finalized records in a window.
type FlowPerformance struct {
	FlowName             string     `json:"flow_name"`
	TotalProcessed       int64      `json:"total_processed"`
	CompletedCount       int64      `json:"completed_count"`
	FailedCount          int64      `json:"failed_count"`
	AvgProcessingMinutes float64    `json:"avg_processing_minutes"`
	FirstCompletion      *time.Time `json:"first_completion,omitempty"`
	LastCompletion       *time.Time `json:"last_completion,omitempty"`
}

// PerformanceReport is the output of a performance analysis.
type PerformanceReport struct {
	GeneratedAt          time.Time         `json:"generated_at"`
	InstanceID           string            `json:"instance_id"`
	WindowHours          float64           `json:"time_window_hours"`
	TotalProcessed       int64             `json:"total_processed"`
	TotalCompleted       int64             `json:"total_completed"`
	TotalFailed          int64             `json:"total_failed"`
	SuccessRatePercent   float64           `json:"success_rate_percent"`
	AvgProcessingMinutes float64           `json:"avg_processing_time_minutes"`
	ByFlow               []FlowPerformance `json:"performance_by_flow"`
}

// ErrorFrequency is one failure message's occurrence count inside a window.
type ErrorFrequency struct {
	FlowName        string    `json:"flow_name"`
	ErrorMessage    string    `json:"error_message"`
	Count           int64     `json:"error_count"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`
}

// ErrorReport ranks failure messages by frequency.
type ErrorReport struct {
	GeneratedAt      time.Time                   `json:"generated_at"`
	InstanceID       string                      `json:"instance_id"`
	WindowHours      float64                     `json:"time_window_hours"`
	TotalErrors      int64                       `json:"total_errors"`
	UniqueErrorTypes int                         `json:"unique_error_types"`
	ByFlow           map[string][]ErrorFrequency `json:"errors_by_flow"`
	TopErrors        []ErrorFrequency            `json:"top_errors"`
}

// TrendBucket is one hourly throughput bucket.
type TrendBucket struct {
	Hour                 time.Time `json:"hour"`
	FlowName             string    `json:"flow_name"`
	Processed            int64     `json:"records_processed"`
	Completed            int64     `json:"completed_count"`
	AvgProcessingMinutes float64   `json:"avg_processing_minutes"`
}

// TrendReport buckets claim throughput per hour.
type TrendReport struct {
	GeneratedAt       time.Time     `json:"generated_at"`
	InstanceID        string        `json:"instance_id"`
	WindowHours       float64       `json:"time_window_hours"`
	Buckets           []TrendBucket `json:"hourly_trends"`
	PeakHourProcessed int64         `json:"peak_hour_processing"`
	HoursAnalyzed     int           `json:"total_hours_analyzed"`
}
