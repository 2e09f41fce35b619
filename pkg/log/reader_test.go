package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ilog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func countEvents(t *testing.T, path string) int {
	t.Helper()
	return len(readAll(t, path, Filter{}))
}

func readAll(t *testing.T, path string, filter Filter) []Event {
	t.Helper()
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	var out []Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, event)
	}
}

func TestReaderIteratesInOrder(t *testing.T) {
	path := createTestLogFile(t, []Event{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Layer: LayerTransport},
		{Timestamp: time.Now(), ConnectionID: "conn-2", Layer: LayerWire},
		{Timestamp: time.Now(), ConnectionID: "conn-3", Layer: LayerClient},
	})

	read := readAll(t, path, Filter{})
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].ConnectionID != "conn-1" || read[2].ConnectionID != "conn-3" {
		t.Errorf("order: %q .. %q", read[0].ConnectionID, read[2].ConnectionID)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)
	if n := countEvents(t, path); n != 0 {
		t.Errorf("got %d events, want 0", n)
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "nope.ilog")); err == nil {
		t.Error("NewReader should fail for a missing file")
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	in, out := DirectionIn, DirectionOut
	wireLayer := LayerWire
	errCat := CategoryError
	start, end := base.Add(10*time.Minute), base.Add(40*time.Minute)

	path := createTestLogFile(t, []Event{
		{Timestamp: base, ConnectionID: "a", Direction: in, Layer: LayerTransport, Device: "CCD"},
		{Timestamp: base.Add(15 * time.Minute), ConnectionID: "a", Direction: in, Layer: LayerWire, Device: "CCD",
			Message: &MessageEvent{Tag: "setNumberVector", Property: "CCD_TEMPERATURE"}},
		{Timestamp: base.Add(30 * time.Minute), ConnectionID: "b", Direction: out, Layer: LayerWire, Device: "Mount",
			Message: &MessageEvent{Tag: "newNumberVector", Property: "EQUATORIAL_EOD_COORD"}},
		{Timestamp: base.Add(50 * time.Minute), ConnectionID: "b", Direction: in, Layer: LayerWire, Category: CategoryError,
			Error: &ErrorEventData{Message: "bad"}},
	})

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"connection", Filter{ConnectionID: "b"}, 2},
		{"direction", Filter{Direction: &out}, 1},
		{"layer", Filter{Layer: &wireLayer}, 3},
		{"category", Filter{Category: &errCat}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"device", Filter{Device: "CCD"}, 2},
		{"tag", Filter{Tag: "newNumberVector"}, 1},
		{"combined", Filter{Device: "CCD", Direction: &in, Layer: &wireLayer}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(readAll(t, path, tt.filter)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}
