package messaging

import "context"

// Messenger is the outbound action capability of a live session.
type Messenger interface {
	SendText(ctx context.Context, conversation string, text string, mentions []string) error
	SendImage(ctx context.Context, conversation string, imageURL string, caption string, mentions []string) error
	ProfileImageURL(ctx context.Context, participant string) (string, error)
	GroupMembers(ctx context.Context, conversation string) ([]string, error)
	SetGroupAnnounceOnly(ctx context.Context, conversation string, announceOnly bool) error
	RemoveParticipant(ctx context.Context, conversation string, participant string) error
}

// Conn is one live connection to the messaging backend. Events delivers
// inbound events in arrival order and is closed when the connection ends.
type Conn interface {
	Messenger
	Events() <-chan Event
	Close() error
}

// Connector establishes connections. Dial presents previously saved
// credential material; pass nil to start a fresh pairing.
type Connector interface {
	Dial(ctx context.Context, credentials []byte) (Conn, error)
}
