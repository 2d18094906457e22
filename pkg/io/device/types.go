package device

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Transport string

const (
	TransportWS Transport = "ws"
)

var ErrEndpointClosed = errors.New("device: endpoint closed")

type EndpointID uuid.UUID

func (id EndpointID) String() string { return uuid.UUID(id).String() }

// Endpoint is one live client connection bound to a chat session.
type Endpoint interface {
	// Identity
	ID() EndpointID
	SessionID() string
	Transport() Transport
	// SendJSON writes one framed message; implementations serialize writers.
	SendJSON(v any) error
	Touch()
	// lifecyle
	IsAlive() bool
	Close() error
	LastActive() time.Time
}
