package intake

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ReaderSource streams JSONL messages from an arbitrary reader, typically
// stdin when the agent is fed by a pipe. Framing matches FileSource.
type ReaderSource struct {
	name string
	r    io.Reader
}

// NewReaderSource constructs a source reading from r. The name labels the
// stream in errors and synthetic source ids.
func NewReaderSource(name string, r io.Reader) (*ReaderSource, error) {
	if r == nil {
		return nil, fmt.Errorf("intake: reader source: nil reader")
	}
	if strings.TrimSpace(name) == "" {
		name = "stream"
	}
	return &ReaderSource{name: name, r: r}, nil
}

// Run streams messages into out until the reader is exhausted or ctx is
// canceled. It closes out before returning.
func (s *ReaderSource) Run(ctx context.Context, out chan<- Message) error {
	defer close(out)
	return scanJSONL(ctx, s.name, s.r, out)
}

// scanJSONL drives one JSONL stream into out. Blank lines and '#' comments
// are skipped; a malformed line aborts the stream.
func scanJSONL(ctx context.Context, name string, r io.Reader, out chan<- Message) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return fmt.Errorf("intake: %s line %d: %w", name, lineNo, err)
		}
		if msg.SourceID == "" {
			msg.SourceID = fmt.Sprintf("%s:%d", name, lineNo)
		}
		if msg.ObservedAt.IsZero() {
			msg.ObservedAt = time.Now()
		}
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("intake: %s line %d: %w", name, lineNo, err)
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("intake: read %s: %w", name, err)
	}
	return nil
}
