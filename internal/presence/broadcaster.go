package presence

import (
	"github.com/dmchat/internal/event"
	"github.com/dmchat/internal/logger"
)

// Broadcaster pushes the full online set to every registered connection.
type Broadcaster struct {
	reg *Registry
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// Broadcast sends presence_changed to all live connections and returns how many accepted it.
// A refused send is logged and skipped; the dead connection unregisters itself.
func (b *Broadcaster) Broadcast() int {
	ids, conns := b.reg.entries()
	ev := event.Presence(ids)
	sent := 0
	// I/O вне мьютекса реестра
	for _, c := range conns {
		if !c.Send(ev) {
			logger.Errorf("presence broadcast: send refused (online=%d)", len(ids))
			continue
		}
		sent++
	}
	return sent
}
