package model

// Result is the final state of one chapter download.
type Result int

const (
	Succeeded Result = iota
	Failed
)

// String returns "SUCCEEDED" or "FAILED".
func (r Result) String() string {
	if r == Succeeded {
		return "SUCCEEDED"
	}
	return "FAILED"
}

// DownloadOutcome records what happened to one chapter.
type DownloadOutcome struct {
	Chapter      ChapterRef
	Result       Result
	Reason       error // nil unless Result is Failed
	BytesWritten int64
	Path         string
	Skipped      bool // already present from an earlier run
}

// Tally counts outcomes.
type Tally struct {
	Succeeded int
	Skipped   int
	Failed    int
	Bytes     int64
}

// Summarize counts the outcomes of a title download.
func Summarize(outcomes []DownloadOutcome) Tally {
	var t Tally
	for _, o := range outcomes {
		switch {
		case o.Result == Failed:
			t.Failed++
		case o.Skipped:
			t.Succeeded++
			t.Skipped++
		default:
			t.Succeeded++
		}
		t.Bytes += o.BytesWritten
	}
	return t
}

// Complete reports whether no chapter failed.
func (t Tally) Complete() bool {
	return t.Failed == 0
}
