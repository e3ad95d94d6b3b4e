package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns every line. A missing file yields no lines.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Entry is one parsed log line.
type Entry struct {
	Time    time.Time
	Level   zapcore.Level
	Message string
	// Fields holds the remaining structured fields rendered as key=value,
	// sorted by key.
	Fields []string
	// Raw is the original line, used when it is not JSON.
	Raw string
}

// skipped fields are either shown elsewhere or identical on every line.
var skipped = map[string]bool{
	"timestamp":    true,
	"ts":           true,
	"level":        true,
	"msg":          true,
	"caller":       true,
	"service_name": true,
	"hostname":     true,
	"stacktrace":   true,
}

// Parse decodes a JSON log line. Lines that are not JSON come back with only
// Raw set and level info.
func Parse(line string) Entry {
	entry := Entry{Raw: line, Level: zapcore.InfoLevel}
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		entry.Message = line
		return entry
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		entry.Message = line
		return entry
	}

	if msg, ok := fields["msg"].(string); ok {
		entry.Message = msg
	}
	if lvl, ok := fields["level"].(string); ok {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(lvl)); err == nil {
			entry.Level = parsed
		}
	}
	for _, key := range []string{"timestamp", "ts"} {
		if ts, ok := fields[key].(string); ok {
			if t, err := time.Parse("2006-01-02T15:04:05.000Z0700", ts); err == nil {
				entry.Time = t
				break
			}
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				entry.Time = t
				break
			}
		}
	}

	for key, value := range fields {
		if skipped[key] {
			continue
		}
		entry.Fields = append(entry.Fields, fmt.Sprintf("%s=%v", key, value))
	}
	sort.Strings(entry.Fields)
	return entry
}

// ParseAll parses lines and keeps entries at or above minLevel.
func ParseAll(lines []string, minLevel zapcore.Level) []Entry {
	out := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		e := Parse(line)
		if e.Level < minLevel {
			continue
		}
		out = append(out, e)
	}
	return out
}
