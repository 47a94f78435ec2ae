package intake

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// maxLineBytes bounds one JSONL record; chat messages are short.
const maxLineBytes = 1 << 20

// FileSource replays an exported chat log, one JSON message per line. Lines
// that are blank or start with '#' are skipped. A record without a source id
// is assigned a deterministic one derived from the file name and line
// number, so re-running the same file stays idempotent.
type FileSource struct {
	path string
}

// NewFileSource constructs a source reading from path.
func NewFileSource(path string) (*FileSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("intake: file source path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("intake: file source: %w", err)
	}
	return &FileSource{path: path}, nil
}

// Run streams the file's messages into out and returns when the file is
// exhausted or ctx is canceled. It closes out before returning. A malformed
// line aborts the replay: a partial replay with silently dropped messages is
// worse than a loud failure.
func (s *FileSource) Run(ctx context.Context, out chan<- Message) error {
	defer close(out)

	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("intake: open %s: %w", s.path, err)
	}
	defer file.Close()

	return scanJSONL(ctx, s.path, file, out)
}
