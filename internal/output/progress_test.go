package output

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/torosent/loadcore/internal/report"
)

func TestConsoleSinkCombinesThreads(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)

	err := sink.Send(context.Background(), []report.Snapshot{
		{OwnerID: "c", SubOwnerID: "0", Stat: "Requests Completed", Op: report.OpAdd, Value: 10},
		{OwnerID: "c", SubOwnerID: "1", Stat: "Requests Completed", Op: report.OpAdd, Value: 5},
		{OwnerID: "c", SubOwnerID: "0", Stat: "Request Duration", Op: report.OpAverage, Value: 20},
		{OwnerID: "c", SubOwnerID: "1", Stat: "Request Duration", Op: report.OpAverage, Value: 40},
		{OwnerID: "c", SubOwnerID: "0", Stat: "Result Codes", Op: report.OpRegister},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "\r") {
		t.Errorf("expected carriage return prefix, got %q", out)
	}
	if !strings.Contains(out, "Request Duration: 30.0 | Requests Completed: 15.0") {
		t.Errorf("unexpected line %q", out)
	}
	if strings.Contains(out, "Result Codes") {
		t.Errorf("registered statistics without values should not render: %q", out)
	}
}

func TestConsoleSinkMarksDone(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	_ = sink.Send(context.Background(), []report.Snapshot{
		{SubOwnerID: "0", Stat: "Entries Renamed", Op: report.OpAdd, Value: 3},
		{SubOwnerID: "0", Stat: "Entries Renamed", Op: report.OpDone},
	})
	if !strings.Contains(buf.String(), "Entries Renamed: 3.0 (done)") {
		t.Errorf("unexpected line %q", buf.String())
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestConsoleSinkNilWriter(t *testing.T) {
	sink := NewConsoleSink(nil)
	if err := sink.Send(context.Background(), []report.Snapshot{{Stat: "x", Op: report.OpAdd, Value: 1}}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}
