// Package channels hosts the chat surfaces the assistant is reachable on
// and the manager that runs their lifecycles.
package channels

import (
	"context"
	"fmt"

	"github.com/iarabot/iara/pkg/bus"
	"github.com/iarabot/iara/pkg/logger"
)

// Channel is one chat surface. Start must not block; Stop must be safe to
// call after a failed Start.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Manager owns the registered channels and starts/stops them together.
type Manager struct {
	channels map[string]Channel
	order    []string
}

func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

func (m *Manager) Register(ch Channel) {
	name := ch.Name()
	if _, exists := m.channels[name]; !exists {
		m.order = append(m.order, name)
	}
	m.channels[name] = ch
}

// StartAll starts every registered channel. A channel that fails to start
// is logged and skipped; the others keep running. An error is returned
// only when no channel started at all.
func (m *Manager) StartAll(ctx context.Context) error {
	started := 0
	for _, name := range m.order {
		ch := m.channels[name]
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Channel failed to start", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
			continue
		}
		logger.InfoCF("channels", "Channel started", map[string]interface{}{"channel": name})
		started++
	}
	if started == 0 && len(m.order) > 0 {
		return fmt.Errorf("no channel started")
	}
	return nil
}

func (m *Manager) StopAll(ctx context.Context) {
	for _, name := range m.order {
		if err := m.channels[name].Stop(ctx); err != nil {
			logger.WarnCF("channels", "Channel stop failed", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
}

// Send routes an outbound message to the channel it belongs to.
func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) error {
	ch, ok := m.channels[msg.Channel]
	if !ok {
		return fmt.Errorf("unknown channel: %s", msg.Channel)
	}
	return ch.Send(ctx, msg)
}
