package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestRead(t *testing.T) {
	// Create a temporary log file
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	// Write 10 lines of content
	var content strings.Builder
	var expectedAll []string
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Line %d", i)
		content.WriteString(line + "\n")
		expectedAll = append(expectedAll, line)
	}

	if err := os.WriteFile(logPath, []byte(content.String()), 0644); err != nil {
		t.Fatalf("failed to create test log file: %v", err)
	}

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{
			name:     "read all (0)",
			maxLines: 0,
			expected: expectedAll,
		},
		{
			name:     "read all (negative)",
			maxLines: -1,
			expected: expectedAll,
		},
		{
			name:     "read partial (5)",
			maxLines: 5,
			expected: expectedAll[5:],
		},
		{
			name:     "read exactly all (10)",
			maxLines: 10,
			expected: expectedAll,
		},
		{
			name:     "read more than exists (20)",
			maxLines: 20,
			expected: expectedAll,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(logPath, tt.maxLines)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Read() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "nope.log"), 10)
	if err != nil || got != nil {
		t.Fatalf("Read() = %v, %v; want nil, nil", got, err)
	}
}

func TestParse(t *testing.T) {
	line := `{"level":"warn","timestamp":"2026-10-18T09:30:00.000Z","msg":"poll failed","resource":"devices","error":"connection refused","service_name":"gasmon","hostname":"box"}`
	e := Parse(line)

	if e.Level != zapcore.WarnLevel {
		t.Errorf("Level = %v, want warn", e.Level)
	}
	if e.Message != "poll failed" {
		t.Errorf("Message = %q", e.Message)
	}
	want := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	if !e.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", e.Time, want)
	}
	wantFields := []string{"error=connection refused", "resource=devices"}
	if !reflect.DeepEqual(e.Fields, wantFields) {
		t.Errorf("Fields = %v, want %v", e.Fields, wantFields)
	}
}

func TestParse_PlainText(t *testing.T) {
	tests := []string{"plain text line", "{not json"}
	for _, line := range tests {
		e := Parse(line)
		if e.Message != line || e.Level != zapcore.InfoLevel || len(e.Fields) != 0 {
			t.Errorf("Parse(%q) = %#v", line, e)
		}
	}
}

func TestParseAll_FiltersByLevel(t *testing.T) {
	lines := []string{
		`{"level":"debug","msg":"a"}`,
		`{"level":"info","msg":"b"}`,
		"",
		`{"level":"error","msg":"c"}`,
	}
	got := ParseAll(lines, zapcore.InfoLevel)
	if len(got) != 2 || got[0].Message != "b" || got[1].Message != "c" {
		t.Fatalf("ParseAll = %#v", got)
	}
	if all := ParseAll(lines, zapcore.DebugLevel); len(all) != 3 {
		t.Fatalf("ParseAll(debug) len = %d, want 3", len(all))
	}
}
