package chatsource

import (
	"context"
	"errors"
	"fmt"
)

// Disconnected is the Connector used when no chat platform client is
// linked into the build. Monitors, billing, and exports keep working;
// login and session restore report the platform as unsupported until a
// real Connector is wired in its place.
type Disconnected struct{}

// NewDisconnected returns the placeholder connector.
func NewDisconnected() Disconnected { return Disconnected{} }

func (Disconnected) StartAuth(_ context.Context, _ Credentials) (PendingAuth, error) {
	return nil, fmt.Errorf("chat platform connector not configured: %w", errors.ErrUnsupported)
}

func (Disconnected) Restore(_ context.Context, _ Credentials) (Conn, error) {
	return nil, fmt.Errorf("chat platform connector not configured: %w", errors.ErrUnsupported)
}
