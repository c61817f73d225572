package hook

import "time"

// Base provides a default no-op implementation of the Hook interface.
// Embed this in a custom hook and override only the methods it needs.
type Base struct {
	id string
}

// NewHookBase creates a new base hook with the given ID.
func NewHookBase(id string) *Base {
	return &Base{id: id}
}

func (h *Base) ID() string {
	return h.id
}

func (h *Base) Provides(event Event) bool {
	return false
}

func (h *Base) Stop() error {
	return nil
}

func (h *Base) OnConnect(opts *ConnectOptions) error {
	return nil
}

func (h *Base) OnConnected(sessionPresent bool) error {
	return nil
}

func (h *Base) OnDisconnect(err error) error {
	return nil
}

func (h *Base) OnPublish(msg *PublishMessage) error {
	return nil
}

func (h *Base) OnMessage(msg *PublishMessage) error {
	return nil
}

func (h *Base) OnReconnect(attempt int, delay time.Duration) error {
	return nil
}
