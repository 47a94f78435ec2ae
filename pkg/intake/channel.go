package intake

import (
	"context"
	"fmt"
	"sync"
)

// ChannelSource is a programmatic feed: whatever transport the embedding
// process runs (a chat client, a webhook server, a test) pushes messages in
// through Publish and the engine drains them through Run. The source owns a
// bounded buffer so a slow consumer backpressures the publisher.
type ChannelSource struct {
	ch        chan Message
	closeOnce sync.Once
	closed    chan struct{}
}

// NewChannelSource constructs a source with the given buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSource{
		ch:     make(chan Message, buffer),
		closed: make(chan struct{}),
	}
}

// Publish hands one message to the source. It blocks while the buffer is
// full and fails once the source is closed or ctx is canceled.
func (s *ChannelSource) Publish(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	select {
	case <-s.closed:
		return fmt.Errorf("intake: source is closed")
	default:
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.closed:
		return fmt.Errorf("intake: source is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the feed. Messages already buffered are still delivered;
// subsequent Publish calls fail. Safe to call more than once.
func (s *ChannelSource) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Run forwards published messages into out until the source is closed and
// drained, or ctx is canceled. It closes out before returning.
func (s *ChannelSource) Run(ctx context.Context, out chan<- Message) error {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.ch:
			select {
			case out <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-s.closed:
			// Drain what was buffered before the close.
			for {
				select {
				case msg := <-s.ch:
					select {
					case out <- msg:
					case <-ctx.Done():
						return ctx.Err()
					}
				default:
					return nil
				}
			}
		}
	}
}
