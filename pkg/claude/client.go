// Package claude wraps the Anthropic SDK behind a small interface covering
// the two capabilities the pipeline needs: vision extraction over photo
// content and text reasoning over assembled evidence.
package claude

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/appraisal-precheck/internal/resilience"
)

// Client defines the model operations used by the pipeline.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is a single model invocation.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      string
	Messages    []Message
	Temperature *float64
}

// Message is one conversational turn. Content parts may mix text and images.
type Message struct {
	Role    string // "user" or "assistant"
	Content []Part
}

// Part is one content block within a message.
type Part struct {
	Text string

	// ImageURL references a fetchable photo; ImageData carries base64 content
	// with its media type. At most one of the three forms is set.
	ImageURL  string
	ImageData string
	MediaType string
}

// TextPart builds a text content part.
func TextPart(text string) Part { return Part{Text: text} }

// ImageURLPart builds an image part referencing a URL.
func ImageURLPart(url string) Part { return Part{ImageURL: url} }

// UserMessage builds a user-role message from parts.
func UserMessage(parts ...Part) Message {
	return Message{Role: "user", Content: parts}
}

// AssistantMessage builds an assistant-role message from a single text part.
func AssistantMessage(text string) Message {
	return Message{Role: "assistant", Content: []Part{TextPart(text)}}
}

// MessageResponse is the model's reply.
type MessageResponse struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      TokenUsage
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// LogUsage logs token counts for the named pipeline phase.
func (u TokenUsage) LogUsage(model, phase string) {
	zap.L().Info("model usage",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
	)
}

// sdkClient implements Client using the official anthropic-sdk-go, with a
// client-side rate limiter ahead of every call.
type sdkClient struct {
	client  sdk.Client
	limiter *rate.Limiter
}

// NewClient creates a rate-limited client backed by the SDK. requestsPerSecond
// at or below zero disables client-side limiting.
func NewClient(apiKey string, requestsPerSecond float64) Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &sdkClient{
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "claude: rate limiter")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(eris.Wrap(err, "claude: create message"), apiErr.StatusCode)
		}
		return nil, eris.Wrap(err, "claude: create message")
	}

	return fromSDKMessage(msg), nil
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, p := range m.Content {
			switch {
			case p.ImageURL != "":
				blocks = append(blocks, sdk.NewImageBlock(sdk.URLImageSourceParam{URL: p.ImageURL}))
			case p.ImageData != "":
				blocks = append(blocks, sdk.NewImageBlockBase64(p.MediaType, p.ImageData))
			default:
				blocks = append(blocks, sdk.NewTextBlock(p.Text))
			}
		}
		if m.Role == "assistant" {
			out[i] = sdk.NewAssistantMessage(blocks...)
		} else {
			out[i] = sdk.NewUserMessage(blocks...)
		}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	text := ""
	for _, b := range msg.Content {
		if b.Type == "text" {
			text += b.Text
		}
	}
	return &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Text:       text,
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
}
