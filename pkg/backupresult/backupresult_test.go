package backupresult

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestResultSingleTransition(t *testing.T) {
	testCases := []struct {
		name   string
		first  func(r *Result)
		second func(r *Result)
		expect Status
	}{
		{
			name:   "Success then Failed stays Success",
			first:  func(r *Result) { r.MarkSuccess() },
			second: func(r *Result) { r.MarkFailed(errors.New("late error")) },
			expect: Success,
		},
		{
			name:   "Failed then Success stays Failed",
			first:  func(r *Result) { r.MarkFailed(errors.New("boom")) },
			second: func(r *Result) { r.MarkSuccess() },
			expect: Failed,
		},
		{
			name:   "Skipped then Success stays Skipped",
			first:  func(r *Result) { r.MarkSkipped("profile directory is empty") },
			second: func(r *Result) { r.MarkSuccess() },
			expect: Skipped,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := New("10000", "/src/10000", "/dst/10000.zip", "compress")
			if r.Status != Pending {
				t.Fatalf("new result should be Pending, got %s", r.Status)
			}
			tc.first(r)
			tc.second(r)
			if r.Status != tc.expect {
				t.Errorf("status = %s, want %s", r.Status, tc.expect)
			}
		})
	}
}

func TestResultSkippedReason(t *testing.T) {
	r := New("99991", "/src/99991", "/dst/99991.zip", "compress")
	r.MarkSkipped("profile directory is empty")
	if r.Status != Skipped {
		t.Fatalf("status = %s, want %s", r.Status, Skipped)
	}
	if !strings.Contains(r.Error, "empty") {
		t.Errorf("skip reason %q should mention emptiness", r.Error)
	}
}

func TestAggregatorSummary(t *testing.T) {
	agg := NewAggregator()

	ok := New("10000", "s", "d", "compress")
	ok.SetCompressedSize(1000)
	ok.MarkSuccess()
	agg.Add(ok)

	ok2 := New("10001", "s", "d", "compress")
	ok2.SetCompressedSize(500)
	ok2.MarkSuccess()
	agg.Add(ok2)

	skipped := New("99991", "s", "d", "compress")
	skipped.MarkSkipped("profile directory is empty")
	agg.Add(skipped)

	failed := New("10002", "s", "d", "compress")
	failed.MarkFailed(errors.New("disk full"))
	agg.Add(failed)

	s := agg.Summary()
	if s.Total != 4 || s.Succeeded != 2 || s.Skipped != 1 || s.Failed != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.CompressedSizeBytes != 1500 {
		t.Errorf("CompressedSizeBytes = %d, want 1500", s.CompressedSizeBytes)
	}
}

func TestAggregatorEmptySummary(t *testing.T) {
	s := NewAggregator().Summary()
	if s.Total != 0 || s.Succeeded != 0 || s.Skipped != 0 || s.Failed != 0 || s.CompressedSizeBytes != 0 {
		t.Errorf("empty aggregator should produce an all-zero summary, got %+v", s)
	}
}

func TestAggregatorJSON(t *testing.T) {
	agg := NewAggregator()
	r := New("10000", "/src/10000", "/dst/10000", "mirror")
	r.SetMirrorExitCode(1)
	r.MarkSuccess()
	agg.Add(r)

	data, err := json.Marshal(agg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 result, got %d", len(decoded))
	}
	if decoded[0]["status"] != "success" {
		t.Errorf("status = %v, want success", decoded[0]["status"])
	}
	if decoded[0]["mirrorExitCode"] != float64(1) {
		t.Errorf("mirrorExitCode = %v, want 1", decoded[0]["mirrorExitCode"])
	}
}

func TestStatusRoundTrip(t *testing.T) {
	for _, status := range []Status{Pending, Success, Skipped, Failed} {
		parsed, err := ParseStatus(status.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q) failed: %v", status.String(), err)
		}
		if parsed != status {
			t.Errorf("round trip of %s produced %s", status, parsed)
		}
	}
	if _, err := ParseStatus("bogus"); err == nil {
		t.Error("expected error for unknown status string")
	}
}
