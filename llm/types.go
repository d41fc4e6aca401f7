// Package llm defines the canonical, provider-agnostic data model shared by
// every adapter, the stream accumulator, the middleware pipeline, and the
// client facade: messages, requests, responses, streaming events, tool
// descriptors, and conversation state.
package llm

import (
	"time"

	"github.com/invopop/jsonschema"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind discriminates the Content sum type.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentAudio ContentKind = "audio"
	ContentParts ContentKind = "parts"
)

// Image references inline bytes or a remote URL. Exactly one of URL or Data
// should be set; Data requires MIME.
type Image struct {
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
	MIME string `json:"mime,omitempty"`
}

// Audio references inline bytes or a remote URL. Exactly one of URL or Data
// should be set; Data requires MIME.
type Audio struct {
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
	MIME string `json:"mime,omitempty"`
}

// Part is a single element of a ContentParts sequence. It carries exactly
// one of Text, Image, or Audio depending on Kind.
type Part struct {
	Kind  ContentKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Image *Image      `json:"image,omitempty"`
	Audio *Audio      `json:"audio,omitempty"`
}

// Content is a sum type: plain text, one image, one audio, or an ordered
// heterogeneous sequence of such parts.
type Content struct {
	Kind  ContentKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Image *Image      `json:"image,omitempty"`
	Audio *Audio      `json:"audio,omitempty"`
	Parts []Part      `json:"parts,omitempty"`
}

// TextContent builds a plain-text Content value.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// ToolCall is a model-emitted invocation of a named function. Arguments are
// carried as raw JSON text, never parsed eagerly, because partial fragments
// arrive during streaming and are only valid once concatenated in full.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Metadata carries the fields of a Message that aren't part of its content.
type Metadata struct {
	// Name is the function name for tool-role messages.
	Name string `json:"name,omitempty"`
	// ToolCallID correlates a tool-result message to the assistant ToolCall
	// it answers.
	ToolCallID string `json:"toolCallId,omitempty"`
	// ToolCalls lists the calls an assistant message invoked.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// Message is an immutable chat turn.
type Message struct {
	Role     Role     `json:"role"`
	Content  Content  `json:"content"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// GetRole and GetContentString let Message participate in generic logging
// and display code that only needs the coarse shape of a chat turn.
func (m Message) GetRole() string { return string(m.Role) }

func (m Message) GetContentString() string {
	switch m.Content.Kind {
	case ContentText:
		return m.Content.Text
	case ContentParts:
		var out string
		for _, p := range m.Content.Parts {
			if p.Kind == ContentText {
				out += p.Text
			}
		}
		return out
	default:
		return ""
	}
}

// SystemMessage, UserMessage, and AssistantMessage are convenience
// constructors for the common case of a single text block.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: TextContent(text)}
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: TextContent(text)}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: TextContent(text)}
}

// ToolResultMessage builds a tool-role message carrying the result text for
// the given tool-call id.
func ToolResultMessage(toolCallID, name, resultText string) Message {
	return Message{
		Role:    RoleTool,
		Content: TextContent(resultText),
		Metadata: Metadata{
			Name:       name,
			ToolCallID: toolCallID,
		},
	}
}

// ToolDescriptor is the schema a model is told about for a callable tool.
// Tool names must be unique within a Request.
type ToolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// ToolChoiceType controls how strongly a Request steers tool usage.
type ToolChoiceType string

const (
	ToolChoiceAuto     ToolChoiceType = "auto"
	ToolChoiceRequired ToolChoiceType = "required"
	ToolChoiceTool     ToolChoiceType = "tool"
	ToolChoiceNone     ToolChoiceType = "none"
)

// ToolChoice selects whether/which tool the model must call.
type ToolChoice struct {
	Type ToolChoiceType `json:"type"`
	Name string         `json:"name,omitempty"` // required when Type == ToolChoiceTool
}

// ResponseFormatType discriminates ResponseFormat.
type ResponseFormatType string

const (
	ResponseFormatNone       ResponseFormatType = ""
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat constrains the shape of a model's output.
type ResponseFormat struct {
	Type   ResponseFormatType `json:"type"`
	Schema *jsonschema.Schema `json:"schema,omitempty"`
	Strict bool               `json:"strict,omitempty"`
}

// Parameters holds the optional sampling/limit knobs of a Request.
type Parameters struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
}

// Request is the canonical, backend-agnostic description of one call.
type Request struct {
	Messages       []Message        `json:"messages"`
	Model          string           `json:"model"`
	Parameters     Parameters       `json:"parameters"`
	Tools          []ToolDescriptor `json:"tools,omitempty"`
	ToolChoice     ToolChoice       `json:"toolChoice,omitempty"`
	ResponseFormat *ResponseFormat  `json:"responseFormat,omitempty"`
}

// Clone returns a deep-enough copy of the Request suitable for retrying:
// the slices are copied so a layer may freely append/mutate without
// affecting the original value passed in by the caller.
func (r Request) Clone() Request {
	clone := r
	clone.Messages = append([]Message(nil), r.Messages...)
	clone.Tools = append([]ToolDescriptor(nil), r.Tools...)
	clone.Parameters.Stop = append([]string(nil), r.Parameters.Stop...)
	return clone
}

// FinishReason is the canonical vocabulary for why generation stopped.
type FinishReason string

const (
	FinishStop         FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolUse       FinishReason = "tool_use"
	FinishContentFilter FinishReason = "content_filter"
	FinishOther         FinishReason = "other"
)

// Usage reports token accounting for a completed request.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Response is the canonical result of a non-streaming (or accumulated
// streaming) call.
type Response struct {
	ContentText  string         `json:"contentText"`
	ToolCalls    []ToolCall     `json:"toolCalls,omitempty"`
	FinishReason FinishReason   `json:"finishReason"`
	Usage        *Usage         `json:"usage,omitempty"`
	Model        string         `json:"model"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EventKind discriminates StreamEvent.
type EventKind string

const (
	EventContentDelta  EventKind = "content_delta"
	EventToolCallDelta EventKind = "tool_call_delta"
	EventMetadataDelta EventKind = "metadata_delta"
	EventDone          EventKind = "done"
)

// ToolCallDelta carries an incremental fragment of a tool call. Every field
// except Index is optional; Index identifies the call slot within the
// response being assembled.
type ToolCallDelta struct {
	Index             int     `json:"index"`
	ID                *string `json:"id,omitempty"`
	Name              *string `json:"name,omitempty"`
	ArgumentsFragment *string `json:"argumentsFragment,omitempty"`
}

// MetadataDelta carries incremental updates to response-level metadata.
type MetadataDelta struct {
	FinishReason *FinishReason `json:"finishReason,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
	Model        *string       `json:"model,omitempty"`
}

// StreamEvent is one element of the event sequence a Provider yields for a
// streaming call. Every non-error stream ends with exactly one Done event.
type StreamEvent struct {
	Kind          EventKind      `json:"kind"`
	ContentDelta  string         `json:"contentDelta,omitempty"`
	ToolCallDelta *ToolCallDelta `json:"toolCallDelta,omitempty"`
	MetadataDelta *MetadataDelta `json:"metadataDelta,omitempty"`
}

// ContentDeltaEvent, ToolCallDeltaEvent, MetadataDeltaEvent, and DoneEvent
// are convenience constructors used by adapters.
func ContentDeltaEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventContentDelta, ContentDelta: text}
}

func ToolCallDeltaEvent(d ToolCallDelta) StreamEvent {
	return StreamEvent{Kind: EventToolCallDelta, ToolCallDelta: &d}
}

func MetadataDeltaEvent(d MetadataDelta) StreamEvent {
	return StreamEvent{Kind: EventMetadataDelta, MetadataDelta: &d}
}

func DoneEvent() StreamEvent {
	return StreamEvent{Kind: EventDone}
}

// StateMetadata is the small envelope of bookkeeping fields attached to a
// ConversationState.
type StateMetadata struct {
	Title      string            `json:"title,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	TokenCount int               `json:"tokenCount,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// HasTags reports whether m carries every tag in tags (intersection
// semantics used by the state store's FindByTags).
func (m StateMetadata) HasTags(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(m.Tags))
	for _, t := range m.Tags {
		set[t] = struct{}{}
	}
	for _, t := range tags {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// ConversationState is a persisted conversation: its messages plus
// bookkeeping metadata. CreatedAt and UpdatedAt are always set by the store,
// never by callers.
type ConversationState struct {
	ID        string        `json:"id"`
	Messages  []Message     `json:"messages"`
	Metadata  StateMetadata `json:"metadata"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Clone returns a deep-enough copy for safe external mutation.
func (s ConversationState) Clone() ConversationState {
	clone := s
	clone.Messages = append([]Message(nil), s.Messages...)
	clone.Metadata.Tags = append([]string(nil), s.Metadata.Tags...)
	if s.Metadata.Extra != nil {
		clone.Metadata.Extra = make(map[string]string, len(s.Metadata.Extra))
		for k, v := range s.Metadata.Extra {
			clone.Metadata.Extra[k] = v
		}
	}
	return clone
}
