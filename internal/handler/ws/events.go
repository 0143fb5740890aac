package ws

import "encoding/json"

// Inbound event types (client -> server).
const (
	eventFetchProfile      = "fetchProfile"
	eventStartConversation = "startConversation"
	eventSendMessage       = "sendMessage"
)

// Outbound event types (server -> client).
const (
	eventProfileData       = "profileData"
	eventProfileError      = "profileError"
	eventDialogueOpened    = "dialogueOpened"
	eventConversationError = "conversationError"
	eventQuotaExceeded     = "quotaExceeded"
	eventDialogueChunk     = "dialogueChunk"
	eventDialogueEnd       = "dialogueEnd"
	eventQuotaUpdated      = "quotaUpdated"
)

type inboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type fetchProfilePayload struct {
	UserID string `json:"userId"`
}

type startConversationPayload struct {
	Scenario string `json:"scenario"`
	UserID   string `json:"userId"`
}

type sendMessagePayload struct {
	Text string `json:"text"`
}

type outboundEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type textPayload struct {
	Text string `json:"text"`
}

type openedPayload struct {
	Scenario string `json:"scenario"`
	Text     string `json:"text"`
}

type quotaPayload struct {
	DailyConversations int `json:"dailyConversations"`
}
