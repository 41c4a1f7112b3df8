package orchestration

import (
	"sync"

	"github.com/rtvoicechat/core/core/llms"
)

// conversation is the append-only turn history. Interrupted turns are kept
// with their partial assistant text so later generations see what the user
// actually heard.
type conversation struct {
	mu    sync.Mutex
	turns []llms.Turn
}

func (c *conversation) Append(turn llms.Turn) {
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()
}

// History returns a snapshot safe to hand to a generation stream.
func (c *conversation) History() []llms.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := make([]llms.Turn, len(c.turns))
	copy(turns, c.turns)
	return turns
}
