// Package handlers provides the demo job handlers shipped alongside
// kestrelq: email dispatch, an AI-processing stand-in, and a data
// cleaning/ETL stand-in. Each validates the subset of its payload it
// needs via job.Doc.Bind and is safe to register directly on a
// kestrelq.Registry.
package handlers

import (
	"context"
	"fmt"

	"github.com/kestrelq/kestrelq/job"
)

// EmailPayload is the expected shape of an "email" job's payload.
type EmailPayload struct {
	To              string `json:"to"`
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	SimulateFailure bool   `json:"simulate_failure"`
}

// Email sends (in this demo implementation, simulates sending) a
// single email. A handler error is returned if SimulateFailure is set,
// so operators can exercise the retry and dead-lettering paths
// end-to-end without external dependencies.
func Email(_ context.Context, payload job.Doc) (job.Doc, error) {
	var p EmailPayload
	if err := payload.Bind(&p); err != nil {
		return nil, fmt.Errorf("handlers: email: %w", err)
	}
	if p.To == "" {
		p.To = "unknown@example.com"
	}
	if p.Subject == "" {
		p.Subject = "No Subject"
	}
	if p.SimulateFailure {
		return nil, fmt.Errorf("handlers: email: smtp connection refused (simulated)")
	}
	return job.Doc{
		"status":     "sent",
		"to":         p.To,
		"subject":    p.Subject,
		"characters": len(p.Body),
	}, nil
}

// AITaskPayload is the expected shape of an "ai_task" job's payload.
type AITaskPayload struct {
	Task            string `json:"task"`
	Input           string `json:"input"`
	SimulateFailure bool   `json:"simulate_failure"`
}

// AITask simulates an AI processing task (classification or
// summarization).
func AITask(_ context.Context, payload job.Doc) (job.Doc, error) {
	var p AITaskPayload
	if err := payload.Bind(&p); err != nil {
		return nil, fmt.Errorf("handlers: ai_task: %w", err)
	}
	if p.Task == "" {
		p.Task = "classification"
	}
	if p.SimulateFailure {
		return nil, fmt.Errorf("handlers: ai_task: model inference timeout (simulated)")
	}

	var result job.Doc
	switch p.Task {
	case "summarization":
		summary := p.Input
		if len(summary) > 100 {
			summary = summary[:100] + "..."
		}
		result = job.Doc{"summary": summary, "compression_ratio": 0.3}
	default:
		result = job.Doc{"label": "neutral", "confidence": 0.85}
	}

	return job.Doc{
		"task_type": p.Task,
		"result":    result,
	}, nil
}

// DataCleaningPayload is the expected shape of a "data_cleaning" job's
// payload.
type DataCleaningPayload struct {
	Source          string   `json:"source"`
	RowCount        int      `json:"row_count"`
	Operations      []string `json:"operations"`
	SimulateFailure bool     `json:"simulate_failure"`
}

// DataCleaning simulates a data cleaning / ETL task over RowCount rows.
func DataCleaning(_ context.Context, payload job.Doc) (job.Doc, error) {
	var p DataCleaningPayload
	if err := payload.Bind(&p); err != nil {
		return nil, fmt.Errorf("handlers: data_cleaning: %w", err)
	}
	if p.Source == "" {
		p.Source = "unknown"
	}
	if p.RowCount == 0 {
		p.RowCount = 1000
	}
	if len(p.Operations) == 0 {
		p.Operations = []string{"dedup", "normalize", "validate"}
	}
	if p.SimulateFailure {
		return nil, fmt.Errorf("handlers: data_cleaning: data source connection lost (simulated)")
	}

	cleaned := int(float64(p.RowCount) * 0.95)
	removed := p.RowCount - cleaned

	return job.Doc{
		"source":             p.Source,
		"original_rows":      p.RowCount,
		"cleaned_rows":       cleaned,
		"removed_rows":       removed,
		"operations_applied": p.Operations,
		"quality_score":      0.97,
	}, nil
}
