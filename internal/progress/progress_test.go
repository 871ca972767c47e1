package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrinter_Handle(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		event   Event
		want    string
	}{
		{"info", false, Event{Message: "hello", Level: LevelInfo}, "› hello\n"},
		{"error", false, Event{Message: "boom", Level: LevelError}, "✗ boom\n"},
		{"verbose hidden", false, Event{Message: "detail", Level: LevelVerbose}, ""},
		{"verbose shown", true, Event{Message: "detail", Level: LevelVerbose}, "  detail\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPrinter(&buf, tt.verbose).Handle(tt.event)
			if buf.String() != tt.want {
				t.Errorf("Handle() wrote %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestFunc_EmitNil(t *testing.T) {
	var fn Func
	fn.Emit(LevelInfo, "no panic %d", 1)

	var got []string
	fn = func(e Event) { got = append(got, e.Message) }
	fn.Emit(LevelWarning, "retry %d/%d", 1, 3)
	if len(got) != 1 || !strings.Contains(got[0], "retry 1/3") {
		t.Errorf("Emit() delivered %v", got)
	}
}
