// Package model defines the provider-agnostic contract the AgentExecutor
// drives: messages, tool declarations, and the streaming Client/Streamer
// pair an LLM provider adapter must satisfy. Concrete provider adapters
// (Anthropic, Bedrock, OpenAI, ...) are external collaborators per spec §1
// and §6; this package only prescribes the interface they implement.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

// Role identifies the speaker of a Message, mirroring OpenAI-style
// conversation roles (spec §6).
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolChoiceMode constrains how the model selects tools for a request.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoiceMode = "auto"
	// ToolChoiceNone disables tool calling for the request.
	ToolChoiceNone ToolChoiceMode = "none"
	// ToolChoiceRequired forces the model to call some tool.
	ToolChoiceRequired ToolChoiceMode = "required"
	// ToolChoiceSpecific forces the model to call the named tool.
	ToolChoiceSpecific ToolChoiceMode = "specific"
)

// ChunkType enumerates the kinds of data a Streamer may yield.
type ChunkType string

const (
	ChunkTypeContent        ChunkType = "content"
	ChunkTypeToolCallDelta  ChunkType = "tool_call_delta"
	ChunkTypeUsage          ChunkType = "usage"
	ChunkTypeFinish         ChunkType = "finish"
)

type (
	// ToolCall is a completed, provider-assigned tool invocation request.
	ToolCall struct {
		ID        string
		Name      string
		Arguments json.RawMessage
	}

	// ToolCallDelta is a single streamed fragment of a tool call, addressed
	// by the provider's accumulating index (spec §4.5).
	ToolCallDelta struct {
		Index             int
		ID                string
		Name              string
		ArgumentsFragment string
	}

	// Message is one entry of the conversation history sent to the model,
	// rendered from committed Steps by the AgentExecutor.
	Message struct {
		Role       Role
		Content    string
		ToolCalls  []ToolCall // set on an assistant message that called tools
		ToolCallID string     // set on a tool message, links back to the call
		Name       string     // set on a tool message, the tool name
	}

	// ToolDefinition advertises one callable tool to the model as a
	// JSON-schema function descriptor.
	ToolDefinition struct {
		Name        string
		Description string
		Parameters  json.RawMessage // JSON Schema
	}

	// ToolChoice constrains tool selection for a single request.
	ToolChoice struct {
		Mode ToolChoiceMode
		Name string // set when Mode == ToolChoiceSpecific
	}

	// TokenUsage reports token accounting for a request or a single chunk.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}

	// Request is the input to Client.Stream/Complete.
	Request struct {
		Messages   []Message
		Tools      []ToolDefinition
		ToolChoice *ToolChoice
		Model      string
		MaxTokens  int
	}

	// Response is a non-streaming completion result.
	Response struct {
		Content    string
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// Chunk is one unit of a streamed response. Exactly the fields
	// appropriate to Type are populated (spec §6: ModelChunk ::=
	// {content_delta?, tool_call_fragments?, usage?, finish_reason?}).
	Chunk struct {
		Type          ChunkType
		ContentDelta  string
		ToolCallDelta *ToolCallDelta
		Usage         *TokenUsage
		FinishReason  string
	}

	// Streamer yields Chunks for one in-flight request.
	Streamer interface {
		// Recv returns the next chunk, or io.EOF-equivalent via ok=false
		// when the stream has ended normally.
		Recv(ctx context.Context) (chunk Chunk, ok bool, err error)
		// Close releases resources held by the stream. Idempotent.
		Close() error
	}

	// Client is the contract an LLM provider adapter must satisfy.
	Client interface {
		// Stream begins a streaming completion.
		Stream(ctx context.Context, req Request) (Streamer, error)
		// Complete performs a non-streaming completion, for callers (e.g. a
		// termination summary) that do not need incremental output.
		Complete(ctx context.Context, req Request) (Response, error)
	}
)

// Sentinel errors a Client/Streamer may return; the AgentExecutor maps
// these to the provider_error family from spec §7.
var (
	// ErrStreamingUnsupported indicates the adapter cannot stream and the
	// caller should fall back to Complete.
	ErrStreamingUnsupported = errors.New("model: streaming unsupported")
	// ErrRateLimited indicates the provider rejected the request due to
	// rate limiting; callers should retry per their policy.
	ErrRateLimited = errors.New("model: rate limited")
)
