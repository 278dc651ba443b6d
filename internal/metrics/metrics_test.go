package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPass(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		err      error
		outcome  string
	}{
		{name: "clean pass", outcome: "ok"},
		{name: "partial failure", failures: 2, outcome: "partial"},
		{name: "precondition failure", err: errors.New("not found"), outcome: "error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := testutil.ToFloat64(SyncPasses.WithLabelValues("sync", tc.outcome))
			RecordPass("sync", 10*time.Millisecond, tc.failures, tc.err)
			after := testutil.ToFloat64(SyncPasses.WithLabelValues("sync", tc.outcome))
			if after != before+1 {
				t.Fatalf("passes{outcome=%s} = %v, want %v", tc.outcome, after, before+1)
			}
		})
	}
}

func TestRecordMutation(t *testing.T) {
	before := testutil.ToFloat64(MemberMutations.WithLabelValues("add", "hierarchy"))
	RecordMutation("add", "hierarchy")
	if got := testutil.ToFloat64(MemberMutations.WithLabelValues("add", "hierarchy")); got != before+1 {
		t.Fatalf("mutations = %v, want %v", got, before+1)
	}
}

func TestRecordWatchRun(t *testing.T) {
	RecordWatchRun(3, nil)
	if got := testutil.ToFloat64(WatchMappedEvents); got != 3 {
		t.Fatalf("mapped events = %v, want 3", got)
	}
	if got := testutil.ToFloat64(WatchLastSuccess); got <= 0 {
		t.Fatalf("last success = %v, want a timestamp", got)
	}

	before := testutil.ToFloat64(WatchRuns.WithLabelValues("error"))
	RecordWatchRun(0, errors.New("boom"))
	if got := testutil.ToFloat64(WatchRuns.WithLabelValues("error")); got != before+1 {
		t.Fatalf("error runs = %v, want %v", got, before+1)
	}
}
