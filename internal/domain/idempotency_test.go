package domain

import (
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyRecordReplayable(t *testing.T) {
	now := time.Now().UTC()

	processing := IdempotencyRecord{Status: IdempotencyStatusProcessing, TTLAt: now.Add(time.Hour)}
	if processing.Replayable() {
		t.Fatal("processing record must not be replayable")
	}
	done := IdempotencyRecord{Status: IdempotencyStatusDone, HTTPStatus: 201, TTLAt: now.Add(time.Hour)}
	if !done.Replayable() {
		t.Fatal("done record must be replayable")
	}
	if done.Expired(now) {
		t.Fatal("record must not be expired before ttl")
	}
	if !done.Expired(now.Add(2 * time.Hour)) {
		t.Fatal("record must be expired after ttl")
	}
}
