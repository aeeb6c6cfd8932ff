// Package completion defines the provider-neutral contract for the
// language-model Completion Service and the closed set of tools the
// prior-art pipeline offers to it.
package completion

import (
	"context"

	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// UserMessage is shorthand for a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolChoiceMode controls whether the model may, must, or must not call a tool.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide.
	ToolChoiceAuto ToolChoiceMode = "auto"
	// ToolChoiceForced requires a call to ToolChoice.Name.
	ToolChoiceForced ToolChoiceMode = "tool"
	// ToolChoiceNone disables tool use.
	ToolChoiceNone ToolChoiceMode = "none"
)

// ToolChoice selects the tool policy of a request.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name ToolName
}

// Auto returns an auto tool choice.
func Auto() ToolChoice { return ToolChoice{Mode: ToolChoiceAuto} }

// Force returns a tool choice requiring a call to name.
func Force(name ToolName) ToolChoice { return ToolChoice{Mode: ToolChoiceForced, Name: name} }

// Request is a single completion request.
type Request struct {
	System     string
	Messages   []Message
	Tools      []ToolName
	ToolChoice ToolChoice
	MaxTokens  int
}

// ToolCall is a raw tool invocation returned by the model. Arguments is the
// JSON object the model produced.
type ToolCall struct {
	Name      string
	Arguments []byte
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the model's reply. Text concatenates every text block in
// order; ToolCalls keeps tool invocations in order.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
	Model     string
}

// Service is the Completion Service. Implementations map transport and API
// failures to *errors.AppError and return context errors unchanged.
type Service interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, req *Request) (*Response, error)

// Complete calls f.
func (f ServiceFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// IsTransient reports whether err is a transport-level failure of the
// Completion Service that may succeed on retry.
func IsTransient(err error) bool {
	return errors.IsCode(err, errors.ErrCodeCompletionService) ||
		errors.IsCode(err, errors.ErrCodeCompletionRateLimited)
}
