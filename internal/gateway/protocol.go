package gateway

import "encoding/json"

// Frame types of the gateway envelope protocol. The gateway pushes "event"
// frames; the client sends "request" frames and receives matching "response"
// frames correlated by id.
const (
	frameEvent    = "event"
	frameRequest  = "request"
	frameResponse = "response"
)

const (
	methodSendText          = "send_text"
	methodSendImage         = "send_image"
	methodProfileImageURL   = "profile_image_url"
	methodGroupMembers      = "group_members"
	methodGroupSetting      = "group_setting"
	methodRemoveParticipant = "remove_participant"
)

type envelope struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  *eventFrame     `json:"event,omitempty"`
}

type eventFrame struct {
	Kind         string           `json:"kind"`
	PairingToken string           `json:"pairing_token,omitempty"`
	CloseCode    int              `json:"close_code,omitempty"`
	CloseReason  string           `json:"close_reason,omitempty"`
	Credentials  []byte           `json:"credentials,omitempty"`
	Message      *messageFrame    `json:"message,omitempty"`
	Membership   *membershipFrame `json:"membership,omitempty"`
}

type messageFrame struct {
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
	Text         string `json:"text"`
	QuotedSender string `json:"quoted_sender,omitempty"`
	FromSelf     bool   `json:"from_self,omitempty"`
	IsGroup      bool   `json:"is_group,omitempty"`
}

type membershipFrame struct {
	Conversation string   `json:"conversation"`
	Participants []string `json:"participants"`
	Action       string   `json:"action"`
}

type sendTextParams struct {
	Conversation string   `json:"conversation"`
	Text         string   `json:"text"`
	Mentions     []string `json:"mentions,omitempty"`
}

type sendImageParams struct {
	Conversation string   `json:"conversation"`
	ImageURL     string   `json:"image_url"`
	Caption      string   `json:"caption,omitempty"`
	Mentions     []string `json:"mentions,omitempty"`
}

type profileImageParams struct {
	Participant string `json:"participant"`
}

type profileImageResult struct {
	URL string `json:"url"`
}

type groupMembersParams struct {
	Conversation string `json:"conversation"`
}

type groupMembersResult struct {
	Members []string `json:"members"`
}

type groupSettingParams struct {
	Conversation string `json:"conversation"`
	AnnounceOnly bool   `json:"announce_only"`
}

type removeParticipantParams struct {
	Conversation string `json:"conversation"`
	Participant  string `json:"participant"`
}
