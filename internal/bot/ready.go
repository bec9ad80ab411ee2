// internal/bot/ready.go
package bot

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// ReadyWaiter is a single-purpose handler that captures the first session
// ready and hands it to one waiting caller, then takes no further action.
// The CLI uses it to resolve channel names and to obtain an authenticated
// context for backfill without sharing the logging session's lifecycle.
type ReadyWaiter struct {
	once  sync.Once
	ready chan *discordgo.Ready
}

func NewReadyWaiter() *ReadyWaiter {
	return &ReadyWaiter{ready: make(chan *discordgo.Ready, 1)}
}

// HandleReady delivers the first ready payload; later readies from session
// resumes are ignored.
func (w *ReadyWaiter) HandleReady(s *discordgo.Session, r *discordgo.Ready) {
	w.once.Do(func() {
		w.ready <- r
	})
}

// Wait blocks until the ready payload arrives or ctx expires. Callers bound
// the wait so a session that never authenticates fails instead of hanging.
func (w *ReadyWaiter) Wait(ctx context.Context) (*discordgo.Ready, error) {
	select {
	case r := <-w.ready:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
