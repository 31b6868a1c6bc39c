// Package backupresult holds the per-profile outcome records of a backup run
// and the aggregator that derives run-level statistics from them.
//
// A Result is created in the Pending state when a profile's processing
// starts and is moved exactly once to a terminal state. Results flow from
// the engine into the Aggregator and are never mutated afterwards.
package backupresult

import "encoding/json"

// Result is the outcome record for one profile.
type Result struct {
	ProfileName     string `json:"profileName"`
	SourcePath      string `json:"sourcePath"`
	DestinationPath string `json:"destinationPath"`
	Mode            string `json:"mode"`
	Status          Status `json:"status"`

	// MirrorExitCode is set for mirror-mode successes and carries the
	// external tool's numeric exit status (0-7).
	MirrorExitCode *int `json:"mirrorExitCode,omitempty"`

	// CompressedSizeBytes is set for compress-mode successes.
	CompressedSizeBytes *int64 `json:"compressedSizeBytes,omitempty"`

	// Error holds the failure or skip reason, if any.
	Error string `json:"error,omitempty"`
}

// New creates a Pending result for a profile at the start of its processing.
func New(profileName, sourcePath, destinationPath, mode string) *Result {
	return &Result{
		ProfileName:     profileName,
		SourcePath:      sourcePath,
		DestinationPath: destinationPath,
		Mode:            mode,
		Status:          Pending,
	}
}

// MarkSuccess transitions a pending result to Success.
func (r *Result) MarkSuccess() {
	if r.Status != Pending {
		return
	}
	r.Status = Success
}

// MarkSkipped transitions a pending result to Skipped with a reason.
func (r *Result) MarkSkipped(reason string) {
	if r.Status != Pending {
		return
	}
	r.Status = Skipped
	r.Error = reason
}

// MarkFailed transitions a pending result to Failed, capturing the error.
func (r *Result) MarkFailed(err error) {
	if r.Status != Pending {
		return
	}
	r.Status = Failed
	if err != nil {
		r.Error = err.Error()
	}
}

// SetMirrorExitCode records the external mirror tool's exit status.
func (r *Result) SetMirrorExitCode(code int) {
	r.MirrorExitCode = &code
}

// SetCompressedSize records the produced archive's size in bytes.
func (r *Result) SetCompressedSize(size int64) {
	r.CompressedSizeBytes = &size
}

// Summary holds the run-level statistics derived from the final result list.
type Summary struct {
	Total               int   `json:"total"`
	Succeeded           int   `json:"succeeded"`
	Skipped             int   `json:"skipped"`
	Failed              int   `json:"failed"`
	CompressedSizeBytes int64 `json:"compressedSizeBytes"`
}

// Aggregator accumulates one Result per profile in discovery order.
type Aggregator struct {
	results []*Result
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add appends a finished result. Results are stored in the order they are added.
func (a *Aggregator) Add(r *Result) {
	a.results = append(a.results, r)
}

// Results returns the accumulated results in discovery order.
func (a *Aggregator) Results() []*Result {
	return a.results
}

// Summary computes the counts by status and the aggregate compressed size.
// Results without a recorded size (mirror mode, skips, failures) contribute
// nothing; an empty run yields an all-zero summary.
func (a *Aggregator) Summary() Summary {
	s := Summary{Total: len(a.results)}
	for _, r := range a.results {
		switch r.Status {
		case Success:
			s.Succeeded++
		case Skipped:
			s.Skipped++
		case Failed:
			s.Failed++
		}
		if r.CompressedSizeBytes != nil {
			s.CompressedSizeBytes += *r.CompressedSizeBytes
		}
	}
	return s
}

// MarshalJSON renders the aggregator as the plain list of results, which is
// the run's logical output schema.
func (a *Aggregator) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.results)
}
