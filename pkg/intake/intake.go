package intake

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is one raw chat message delivered for classification. SourceID is
// the stable per-message identifier used for idempotent processing; a feed
// that redelivers a message must redeliver the same SourceID.
type Message struct {
	SourceID   string    `json:"source_id"`
	Channel    string    `json:"channel,omitempty"`
	Author     string    `json:"author,omitempty"`
	Text       string    `json:"text"`
	ObservedAt time.Time `json:"observed_at"`
}

// Validate checks the message carries enough to be processed.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.SourceID) == "" {
		return fmt.Errorf("intake: message source_id is required")
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("intake: message %s has empty text", m.SourceID)
	}
	return nil
}

// Source delivers messages into out until the feed is exhausted or ctx is
// canceled. Implementations close out before returning.
type Source interface {
	Run(ctx context.Context, out chan<- Message) error
}
