package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmchat/internal/logger"
	"golang.org/x/sync/errgroup"
)

const counterParallelism = 8

// Counter derives unseen counts from the seen flag of stored messages.
type Counter struct {
	messages MessageStore
}

func NewCounter(messages MessageStore) *Counter {
	return &Counter{messages: messages}
}

// Compute returns contactID -> number of unseen messages from that contact to viewer.
// Contacts with zero unseen messages are absent from the map.
func (c *Counter) Compute(ctx context.Context, viewerID string, contactIDs []string) (map[string]int, error) {
	defer logger.DeferLogDuration("chat.Counter.Compute", time.Now())()
	var (
		mu     sync.Mutex
		unseen = make(map[string]int)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(counterParallelism)
	for _, contactID := range contactIDs {
		g.Go(func() error {
			msgs, err := c.messages.FindUnseen(gctx, contactID, viewerID)
			if err != nil {
				return fmt.Errorf("unseen from %s: %w", contactID, err)
			}
			if len(msgs) == 0 {
				return nil
			}
			mu.Lock()
			unseen[contactID] = len(msgs)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return unseen, nil
}

// MarkSeen acknowledges a single message addressed to viewer.
// Unknown or already seen messages are left as they are.
func (c *Counter) MarkSeen(ctx context.Context, viewerID, messageID string) error {
	if err := c.messages.UpdateSeen(ctx, messageID, viewerID); err != nil {
		return fmt.Errorf("mark seen %s: %w", messageID, err)
	}
	return nil
}

// MarkConversationSeen flips every unseen contact->viewer message.
func (c *Counter) MarkConversationSeen(ctx context.Context, viewerID, contactID string) error {
	if err := c.messages.UpdateSeenBulk(ctx, contactID, viewerID); err != nil {
		return fmt.Errorf("mark conversation seen %s->%s: %w", contactID, viewerID, err)
	}
	return nil
}
