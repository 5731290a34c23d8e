package report

import (
	"context"
	"fmt"
)

// Reporter writes the JSON document and, when configured, its Markdown summary.
type Reporter struct {
	generator Generator
	storage   Storage
}

func NewReporter(generator Generator, storage Storage) *Reporter {
	return &Reporter{
		generator: generator,
		storage:   storage,
	}
}

// SaveJSON writes the report to name and returns the resolved location.
func (r *Reporter) SaveJSON(ctx context.Context, report *Report, name string) (string, error) {
	content, err := report.Encode()
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	location, err := r.storage.Save(ctx, name, content)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return location, nil
}

// SaveMarkdown renders the summary with the configured generator and saves it to name.
func (r *Reporter) SaveMarkdown(ctx context.Context, report *Report, summary Summary, name string) (string, error) {
	if r.generator == nil {
		return "", fmt.Errorf("no markdown generator configured")
	}
	content, err := r.generator.Generate(report, summary)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}
	location, err := r.storage.Save(ctx, name, []byte(content))
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return location, nil
}
