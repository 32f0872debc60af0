// Package models holds the wire-level data types shared between the
// gateway, the agent runtime, the session store, and channel adapters.
package models

import "time"

// ChannelType identifies the messaging platform a message arrived from
// or is addressed to. The "api" channel covers direct HTTP/WS clients
// and the "scheduler" channel marks synthetic requests minted by the
// task scheduler.
type ChannelType string

const (
	ChannelTelegram   ChannelType = "telegram"
	ChannelDiscord    ChannelType = "discord"
	ChannelSlack      ChannelType = "slack"
	ChannelWhatsApp   ChannelType = "whatsapp"
	ChannelMatrix     ChannelType = "matrix"
	ChannelMattermost ChannelType = "mattermost"
	ChannelNostr      ChannelType = "nostr"
	ChannelAPI        ChannelType = "api"
	ChannelScheduler  ChannelType = "scheduler"
)

// Direction indicates whether a message flowed into or out of the system.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role identifies the author of a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCall is a planner-requested tool invocation, carried on the
// assistant message that requested it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // JSON-encoded
}

// ToolResult is the outcome of one tool call, attached to the history by
// matching ToolCallID rather than arrival order.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name,omitempty"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Attachment references a file carried alongside a message.
type Attachment struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is the unified message format across all channels.
type Message struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id,omitempty"`
	Channel     ChannelType    `json:"channel"`
	ChannelID   string         `json:"channel_id,omitempty"` // platform-native peer/conversation id
	UserID      string         `json:"user_id,omitempty"`
	ThreadID    string         `json:"thread_id,omitempty"`
	Direction   Direction      `json:"direction"`
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
