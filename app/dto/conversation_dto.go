package dto

import "time"

// ConversationView represents a conversation in listings, with the
// session-window state resolved at read time
type ConversationView struct {
	UUID             string     `json:"uuid"`
	LeadPhone        string     `json:"lead_phone"`
	LeadName         string     `json:"lead_name,omitempty"`
	SessionOpen      bool       `json:"session_open"`
	SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ListConversationsResponse represents a page of conversations
type ListConversationsResponse struct {
	Items []ConversationView `json:"items"`
	Total int64              `json:"total"`
}

// MessageView represents a message in conversation history
type MessageView struct {
	UUID       string     `json:"uuid"`
	Direction  string     `json:"direction"`
	Type       string     `json:"type"`
	Body       string     `json:"body,omitempty"`
	MediaURL   string     `json:"media_url,omitempty"`
	Status     string     `json:"status"`
	ExternalID string     `json:"external_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

// ListMessagesResponse represents a page of conversation messages
type ListMessagesResponse struct {
	Items []MessageView `json:"items"`
	Total int64         `json:"total"`
}
