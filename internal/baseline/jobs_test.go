package baseline

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestStartRunsJobToCompletion(t *testing.T) {
	client := &fakeClient{}
	registry := NewRegistry(newTestRunner(client), zerolog.Nop())

	jobID := registry.Start(context.Background(), true)
	if jobID == "" {
		t.Fatal("no job id")
	}

	status, ok := registry.Status(jobID)
	if !ok {
		t.Fatal("job missing right after start")
	}
	if status.Status != "running" && status.Status != "completed" {
		t.Fatalf("status = %q", status.Status)
	}

	registry.Close()

	status, ok = registry.Status(jobID)
	if !ok {
		t.Fatal("job missing after completion")
	}
	if status.Status != "completed" {
		t.Fatalf("status = %q, want completed (error: %v)", status.Status, status.Error)
	}
	if status.CompletedCalls != TotalCalls {
		t.Fatalf("completed calls = %d, want %d", status.CompletedCalls, TotalCalls)
	}
	if status.Result == nil || status.Result.TotalCalls != TotalCalls {
		t.Fatalf("result = %+v", status.Result)
	}
	if status.CompletedAt == nil || status.DurationMS == nil {
		t.Fatal("completion metadata missing")
	}

	if len(status.Events) == 0 || status.Events[0] != "Baseline run started" {
		t.Fatalf("first event = %v", status.Events)
	}
	last := status.Events[len(status.Events)-1]
	if last != "Baseline run completed" {
		t.Fatalf("last event = %q", last)
	}
	foundMode := false
	for _, e := range status.Events {
		if e == "Mode: enforcing max response tokens" {
			foundMode = true
		}
	}
	if !foundMode {
		t.Fatalf("mode event missing: %v", status.Events)
	}
}

func TestStartFailedJob(t *testing.T) {
	client := &fakeClient{failAt: 3}
	registry := NewRegistry(newTestRunner(client), zerolog.Nop())

	jobID := registry.Start(context.Background(), false)
	registry.Close()

	status, ok := registry.Status(jobID)
	if !ok {
		t.Fatal("job missing")
	}
	if status.Status != "failed" {
		t.Fatalf("status = %q, want failed", status.Status)
	}
	if status.Error == nil || *status.Error == "" {
		t.Fatal("error missing on failed job")
	}
	if status.Result != nil {
		t.Fatal("failed job carries a result")
	}
	last := status.Events[len(status.Events)-1]
	if !strings.HasPrefix(last, "Baseline failed: ") {
		t.Fatalf("last event = %q", last)
	}
	foundMode := false
	for _, e := range status.Events {
		if e == "Mode: no max response token cap" {
			foundMode = true
		}
	}
	if !foundMode {
		t.Fatalf("mode event missing: %v", status.Events)
	}
}

func TestRunSynchronous(t *testing.T) {
	client := &fakeClient{}
	registry := NewRegistry(newTestRunner(client), zerolog.Nop())

	result, err := registry.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TotalCalls != TotalCalls {
		t.Fatalf("total calls = %d", result.TotalCalls)
	}
	if client.callCount() != TotalCalls {
		t.Fatalf("backend calls = %d", client.callCount())
	}
}

func TestRunSynchronousFailure(t *testing.T) {
	client := &fakeClient{failAt: 1}
	registry := NewRegistry(newTestRunner(client), zerolog.Nop())

	if _, err := registry.Run(context.Background(), true); err == nil {
		t.Fatal("expected error")
	}
}

func TestStatusUnknownJob(t *testing.T) {
	registry := NewRegistry(newTestRunner(&fakeClient{}), zerolog.Nop())
	if _, ok := registry.Status("nope"); ok {
		t.Fatal("unknown job reported present")
	}
}

func TestEventRingCapped(t *testing.T) {
	j := &job{totalCalls: TotalCalls}
	j.mu.Lock()
	for i := 0; i < 300; i++ {
		j.appendEventLocked("event")
	}
	if len(j.events) != maxJobEvents {
		t.Fatalf("events = %d, want %d", len(j.events), maxJobEvents)
	}
	j.mu.Unlock()
}
