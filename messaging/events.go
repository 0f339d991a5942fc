// Package messaging defines the contract between the bot and the messaging
// transport: the inbound event stream and the outbound action capability.
// Transports (see internal/gateway) implement Connector and Conn; the rest of
// the program never touches protocol details.
package messaging

type EventKind string

const (
	// EventPairingToken carries an opaque credential-presentation token
	// (a QR payload) that must be scanned out of band.
	EventPairingToken EventKind = "pairing_token"
	// EventConnected signals the session is established and authenticated.
	EventConnected EventKind = "connected"
	// EventClosed signals the connection ended; Cause may be nil or a
	// *CloseError describing why.
	EventClosed EventKind = "closed"
	// EventCredentials carries updated credential material that must be
	// persisted before the process may safely exit.
	EventCredentials EventKind = "credentials"
	// EventMessage carries an inbound text message.
	EventMessage EventKind = "message"
	// EventMembership carries a group membership change.
	EventMembership EventKind = "membership"
)

type Event struct {
	Kind EventKind

	PairingToken string
	Cause        error
	Credentials  []byte
	Message      *Message
	Membership   *MembershipChange
}

// Message is an inbound text message. Text is the verbatim original text;
// QuotedSender is set when the message is a reply to another participant's
// message.
type Message struct {
	Conversation string
	Sender       string
	Text         string
	QuotedSender string
	FromSelf     bool
	IsGroup      bool
}

type MembershipAction string

const (
	MembershipAdd    MembershipAction = "add"
	MembershipRemove MembershipAction = "remove"
)

type MembershipChange struct {
	Conversation string
	Participants []string
	Action       MembershipAction
}
