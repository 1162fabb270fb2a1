package service

import (
	"sync"

	"github.com/bubelovv/fcp-bot/internal/commands"
)

const deliveryLogCap = 16384

// deliveryLog remembers processed (comment id, edited at) keys so that a
// redelivered webhook for an unedited comment causes no second evaluation.
// The log is best-effort and bounded: losing an entry costs at most one
// duplicate reply comment, since state pushes are diff-based.
type deliveryLog struct {
	mu   sync.Mutex
	seen map[commands.Key]struct{}
}

func newDeliveryLog() *deliveryLog {
	return &deliveryLog{seen: map[commands.Key]struct{}{}}
}

func (d *deliveryLog) Seen(k commands.Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[k]
	return ok
}

func (d *deliveryLog) Mark(k commands.Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.seen) >= deliveryLogCap {
		d.seen = map[commands.Key]struct{}{}
	}
	d.seen[k] = struct{}{}
}
