package models

import (
	"strings"
	"time"
)

// EventKind classifies a log record.
type EventKind int

const (
	KindOther EventKind = iota
	KindUserMessage
	KindAssistantResponse
)

func (k EventKind) String() string {
	switch k {
	case KindUserMessage:
		return "user"
	case KindAssistantResponse:
		return "assistant"
	default:
		return "other"
	}
}

// TokenUsage holds the raw token counts reported for one assistant response.
type TokenUsage struct {
	InputTokens         int64 `json:"input"`
	OutputTokens        int64 `json:"output"`
	CacheCreationTokens int64 `json:"cacheCreation"`
	CacheReadTokens     int64 `json:"cacheRead"`
}

// Total returns the sum of all four categories.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens + u.CacheReadTokens
}

// IsZero reports whether no category has any tokens.
func (u TokenUsage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 && u.CacheCreationTokens == 0 && u.CacheReadTokens == 0
}

// Add returns the category-wise sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:         u.InputTokens + o.InputTokens,
		OutputTokens:        u.OutputTokens + o.OutputTokens,
		CacheCreationTokens: u.CacheCreationTokens + o.CacheCreationTokens,
		CacheReadTokens:     u.CacheReadTokens + o.CacheReadTokens,
	}
}

// Event is one parsed record from a conversation log.
type Event struct {
	Kind        EventKind  `json:"kind"`
	Timestamp   time.Time  `json:"timestamp"`
	IsSidechain bool       `json:"isSidechain,omitempty"`
	Content     string     `json:"content,omitempty"`
	Model       string     `json:"model,omitempty"`
	Usage       TokenUsage `json:"usage"`
	ID          string     `json:"id,omitempty"`
	ParentID    string     `json:"parentId,omitempty"`
	MessageID   string     `json:"messageId,omitempty"`
	File        string     `json:"file,omitempty"`
}

// IsQualifyingUserMessage reports whether e counts as a real prompt typed by the user.
func (e Event) IsQualifyingUserMessage() bool {
	return e.Kind == KindUserMessage && !e.IsSidechain && strings.TrimSpace(e.Content) != ""
}

// IsQualifyingAssistantResponse reports whether e carries billable output.
// Sub-agent traffic is left out of the primary accounting.
func (e Event) IsQualifyingAssistantResponse() bool {
	return e.Kind == KindAssistantResponse && !e.IsSidechain && !e.Usage.IsZero() && e.Usage.OutputTokens > 0
}

// Qualifies reports whether e may open or belong to an accounting window.
func (e Event) Qualifies() bool {
	return e.IsQualifyingUserMessage() || e.IsQualifyingAssistantResponse()
}
