package api

type (
	// ClientFrame is a message sent by a connected chat client
	ClientFrame struct {
		Type   string   `json:"type"`
		Text   string   `json:"text,omitempty"`
		Intent IntentID `json:"intent,omitempty"`
	}

	// ServerFrame is a message pushed to a connected chat client
	ServerFrame struct {
		Type     string    `json:"type"`
		Response *Response `json:"response,omitempty"`
		Error    string    `json:"error,omitempty"`
	}
)

const (
	// FrameMessage is a client frame carrying an inbound message
	FrameMessage = "message"

	// FrameResponse is a server frame answering a client message
	FrameResponse = "response"

	// FrameNotification is a server frame pushed on an event-triggered
	// resume
	FrameNotification = "notification"

	// FrameError is a server frame reporting a handling failure
	FrameError = "error"
)
