package api

import (
	"slices"
	"strings"
	"time"
)

type (
	// Channel identifies the surface a message arrived from
	Channel string

	// Role identifies the author of a session turn
	Role string

	// AttachmentType identifies the kind of response attachment
	AttachmentType string

	// Message is the canonical inbound message after channel normalization
	Message struct {
		UserID     UserID    `json:"user_id"`
		Text       string    `json:"text"`
		Intent     IntentID  `json:"intent,omitempty"`
		Channel    Channel   `json:"channel,omitempty"`
		ReceivedAt time.Time `json:"received_at"`
	}

	// MessageTurn is one recorded exchange entry in a session
	MessageTurn struct {
		Role Role      `json:"role"`
		Text string    `json:"text"`
		At   time.Time `json:"at"`
	}

	// Session carries per-user conversational state outside any single
	// workflow instance: recent turns and the last routed intent
	Session struct {
		UserID     UserID        `json:"user_id"`
		Turns      []MessageTurn `json:"turns,omitempty"`
		LastIntent IntentID      `json:"last_intent,omitempty"`
		CreatedAt  time.Time     `json:"created_at"`
		UpdatedAt  time.Time     `json:"updated_at"`
	}

	// QuickReply is a tappable suggestion carrying a deterministic intent
	QuickReply struct {
		Label  string   `json:"label"`
		Intent IntentID `json:"intent"`
	}

	// Attachment is a non-text artifact delivered with a response
	Attachment struct {
		Type AttachmentType `json:"type"`
		Name string         `json:"name,omitempty"`
		URL  string         `json:"url"`
	}

	// Response is the canonical outbound payload returned to the channel
	// layer for rendering
	Response struct {
		Text         string       `json:"text,omitempty"`
		QuickReplies []QuickReply `json:"quick_replies,omitempty"`
		Attachments  []Attachment `json:"attachments,omitempty"`
	}
)

const (
	ChannelWeb Channel = "web"
	ChannelAPI Channel = "api"
)

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	AttachmentDocument AttachmentType = "document"
	AttachmentImage    AttachmentType = "image"
)

// NewResponse creates a text-only response
func NewResponse(text string) *Response {
	return &Response{Text: text}
}

// WithQuickReplies returns the response with the quick replies attached
func (r *Response) WithQuickReplies(replies ...QuickReply) *Response {
	r.QuickReplies = replies
	return r
}

// WithAttachment returns the response with the attachment appended
func (r *Response) WithAttachment(a Attachment) *Response {
	r.Attachments = append(r.Attachments, a)
	return r
}

// IsEmpty reports whether the response carries nothing renderable
func (r *Response) IsEmpty() bool {
	return r == nil ||
		r.Text == "" && len(r.QuickReplies) == 0 && len(r.Attachments) == 0
}

// Merge combines two responses produced within one engine turn. Texts are
// joined with a blank line; quick replies come from the later response when
// it supplies any; attachments accumulate
func (r *Response) Merge(other *Response) *Response {
	if other.IsEmpty() {
		return r
	}
	if r.IsEmpty() {
		return other
	}

	res := &Response{
		Text:         joinTexts(r.Text, other.Text),
		QuickReplies: r.QuickReplies,
		Attachments:  slices.Concat(r.Attachments, other.Attachments),
	}
	if len(other.QuickReplies) > 0 {
		res.QuickReplies = other.QuickReplies
	}
	return res
}

func joinTexts(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}

// AppendTurn returns a new Session with the turn appended. When limit is
// positive, only the most recent limit turns are retained
func (s *Session) AppendTurn(turn MessageTurn, limit int) *Session {
	res := *s
	res.Turns = append(slices.Clone(s.Turns), turn)
	if limit > 0 && len(res.Turns) > limit {
		res.Turns = res.Turns[len(res.Turns)-limit:]
	}
	res.UpdatedAt = turn.At
	return &res
}

// SetLastIntent returns a new Session with the last routed intent recorded
func (s *Session) SetLastIntent(intent IntentID) *Session {
	res := *s
	res.LastIntent = intent
	return &res
}

// Recent returns up to n of the most recent turns, oldest first
func (s *Session) Recent(n int) []MessageTurn {
	if n <= 0 || len(s.Turns) <= n {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-n:]
}

// Transcript renders recent turns as classifier prompt context
func (s *Session) Transcript(n int) string {
	turns := s.Recent(n)
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = string(t.Role) + ": " + t.Text
	}
	return strings.Join(lines, "\n")
}
