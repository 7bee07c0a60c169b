package handlers_test

import (
	"context"
	"testing"

	"github.com/kestrelq/kestrelq/handlers"
	"github.com/kestrelq/kestrelq/job"
)

func TestEmailSucceeds(t *testing.T) {
	result, err := handlers.Email(context.Background(), job.Doc{"to": "a@b.com", "subject": "hi", "body": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if result["status"] != "sent" {
		t.Fatalf("expected sent, got %v", result["status"])
	}
}

func TestEmailSimulatedFailure(t *testing.T) {
	_, err := handlers.Email(context.Background(), job.Doc{"simulate_failure": true})
	if err == nil {
		t.Fatal("expected simulated failure")
	}
}

func TestAITaskDefaultsToClassification(t *testing.T) {
	result, err := handlers.AITask(context.Background(), job.Doc{"input": "some text"})
	if err != nil {
		t.Fatal(err)
	}
	if result["task_type"] != "classification" {
		t.Fatalf("expected classification, got %v", result["task_type"])
	}
}

func TestDataCleaningAppliesDefaultRowCount(t *testing.T) {
	result, err := handlers.DataCleaning(context.Background(), job.Doc{})
	if err != nil {
		t.Fatal(err)
	}
	if result["original_rows"] != 1000 {
		t.Fatalf("expected default row count 1000, got %v", result["original_rows"])
	}
}
