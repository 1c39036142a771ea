package broadcast

// Notifier is a fire-and-forget sink for events the presentation layer
// cares about (chat messages, timeouts, redeems). Implementations must
// never block and their failures must never roll back the mutation that
// triggered the notification.
type Notifier interface {
	Notify(eventType string, payload any)
}

// Event types pushed to connected clients.
const (
	EventChat       = "chat"
	EventModeration = "moderation"
	EventRedeem     = "redeem"
)

// Nop discards every notification. Used in tests and in deployments
// without a connected overlay.
type Nop struct{}

func (Nop) Notify(string, any) {}
