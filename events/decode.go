package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadJSONL decodes one event per non-empty line
func ReadJSONL(r io.Reader) ([]RunEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out []RunEvent
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e RunEvent
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("failed to decode event on line %d: %w", line, err)
		}
		if !e.Kind.Valid() {
			return nil, fmt.Errorf("unknown event kind %q on line %d", e.Kind, line)
		}
		if e.Level == "" {
			e.Level = LevelInfo
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return out, nil
}

// Normalize checks the kinds of a batch received from a producer and
// defaults missing levels to INFO
func Normalize(batch []RunEvent) error {
	for i := range batch {
		if !batch[i].Kind.Valid() {
			return fmt.Errorf("unknown event kind %q at index %d", batch[i].Kind, i)
		}
		if batch[i].Level == "" {
			batch[i].Level = LevelInfo
		}
	}
	return nil
}

// LoadJSONL reads an events file written one JSON object per line
func LoadJSONL(path string) ([]RunEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()
	return ReadJSONL(f)
}
