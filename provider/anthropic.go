package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"llmrt/llm"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

const (
	anthropicDefaultModel     = "claude-opus-4-5"
	anthropicDefaultMaxTokens = 16000
)

// AnthropicAdapter speaks the Anthropic /v1/messages dialect.
type AnthropicAdapter struct {
	DefaultModel string
	MaxTokens    int
	// ProviderName is used to look up "<ProviderName>_API_KEY". Defaults to
	// "ANTHROPIC".
	ProviderName string
}

func NewAnthropicAdapter(defaultModel string) *AnthropicAdapter {
	return &AnthropicAdapter{DefaultModel: defaultModel}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) secretName() string {
	if a.ProviderName != "" {
		return a.ProviderName + "_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

func (a *AnthropicAdapter) client(opts llm.CallOptions) (anthropic.Client, error) {
	key, err := opts.Secrets.GetSecret(a.secretName())
	if err != nil {
		return anthropic.Client{}, llm.NewValidationError(fmt.Sprintf("resolving %s: %s", a.secretName(), err))
	}
	httpClient := &http.Client{Timeout: 45 * time.Minute}
	return anthropic.NewClient(
		option.WithHTTPClient(httpClient),
		option.WithAPIKey(key),
	), nil
}

func (a *AnthropicAdapter) model(req llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	if a.DefaultModel != "" {
		return a.DefaultModel
	}
	return anthropicDefaultModel
}

func (a *AnthropicAdapter) maxTokens(req llm.Request) int {
	if req.Parameters.MaxOutputTokens != nil && *req.Parameters.MaxOutputTokens > 0 {
		return *req.Parameters.MaxOutputTokens
	}
	if a.MaxTokens > 0 {
		return a.MaxTokens
	}
	return anthropicDefaultMaxTokens
}

func (a *AnthropicAdapter) buildParams(req llm.Request) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model(req)),
		MaxTokens: int64(a.maxTokens(req)),
	}

	if req.Parameters.Temperature != nil {
		params.Temperature = anthropic.Opt(*req.Parameters.Temperature)
	}
	if req.Parameters.TopP != nil {
		params.TopP = anthropic.Opt(*req.Parameters.TopP)
	}

	system, messages, err := anthropicMessagesFromRequest(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, llm.NewSerializationError("building anthropic messages", err)
	}

	if req.ResponseFormat != nil {
		instruction, err := anthropicResponseFormatInstruction(*req.ResponseFormat)
		if err != nil {
			return anthropic.MessageNewParams{}, llm.NewSerializationError("converting response_format schema", err)
		}
		if instruction != "" {
			system = append(system, anthropic.TextBlockParam{Text: instruction})
		}
	}
	params.System = system
	params.Messages = messages

	if len(req.Tools) > 0 {
		toolsToUse := req.Tools
		if req.ToolChoice.Type == llm.ToolChoiceTool {
			toolsToUse = filterToolsByName(req.Tools, req.ToolChoice.Name)
		}
		tools, err := anthropicToolsFromDescriptors(toolsToUse)
		if err != nil {
			return anthropic.MessageNewParams{}, llm.NewSerializationError("converting tools", err)
		}
		params.Tools = tools
		params.ToolChoice = anthropicToolChoiceFrom(req.ToolChoice)
	}

	return params, nil
}

func anthropicToolsFromDescriptors(tools []llm.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		schemaMap, err := jsonSchemaToMap(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		properties, _ := schemaMap["properties"].(map[string]any)
		var required []string
		if req, ok := schemaMap["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
		result[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.Opt(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
					Type:       constant.Object("object"),
				},
			},
		}
	}
	return result, nil
}

func anthropicToolChoiceFrom(choice llm.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice.Type {
	case llm.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case llm.ToolChoiceTool:
		return anthropic.ToolChoiceParamOfTool(choice.Name)
	case llm.ToolChoiceNone:
		none := anthropic.NewToolChoiceNoneParam()
		return anthropic.ToolChoiceUnionParam{OfNone: &none}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

// anthropicResponseFormatInstruction implements this adapter's documented
// structured-output fallback: the Messages API has no native response_format
// parameter, so json_object and json_schema are both enforced by appending a
// deterministic system instruction rather than failing or silently ignoring
// the request. The same instruction text is produced for the same input
// every time; callers must not special-case behavior by model.
func anthropicResponseFormatInstruction(rf llm.ResponseFormat) (string, error) {
	switch rf.Type {
	case llm.ResponseFormatJSONObject:
		return "Respond with a single valid JSON object and nothing else: no prose, no markdown code fences.", nil
	case llm.ResponseFormatJSONSchema:
		schemaMap, err := jsonSchemaToMap(rf.Schema)
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(schemaMap)
		if err != nil {
			return "", fmt.Errorf("marshaling response_format schema: %w", err)
		}
		return fmt.Sprintf("Respond with a single valid JSON object and nothing else: no prose, no markdown code fences. "+
			"The object must conform to this JSON Schema:\n%s", raw), nil
	default:
		return "", nil
	}
}

// anthropicMessagesFromRequest splits system-role messages into Anthropic's
// top-level system field (Anthropic has no system role in its message
// list) and groups the remainder into alternating user/assistant turns,
// merging consecutive same-role messages the way the API requires.
func anthropicMessagesFromRequest(messages []llm.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	var result []anthropic.MessageParam
	var currentRole anthropic.MessageParamRole
	var currentBlocks []anthropic.ContentBlockParamUnion
	haveCurrent := false

	flush := func() {
		if !haveCurrent {
			return
		}
		if currentRole == anthropic.MessageParamRoleUser {
			result = append(result, anthropic.NewUserMessage(currentBlocks...))
		} else {
			result = append(result, anthropic.NewAssistantMessage(currentBlocks...))
		}
		currentBlocks = nil
		haveCurrent = false
	}

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: msg.GetContentString()})
			continue
		}

		role := anthropicRoleFor(msg.Role)
		if haveCurrent && role != currentRole {
			flush()
		}
		currentRole = role
		haveCurrent = true

		blocks, err := anthropicBlocksFromMessage(msg)
		if err != nil {
			return nil, nil, err
		}
		currentBlocks = append(currentBlocks, blocks...)
	}
	flush()

	return system, result, nil
}

func anthropicRoleFor(role llm.Role) anthropic.MessageParamRole {
	if role == llm.RoleAssistant {
		return anthropic.MessageParamRoleAssistant
	}
	// Tool results are submitted as part of the user turn in Anthropic's
	// protocol.
	return anthropic.MessageParamRoleUser
}

func anthropicBlocksFromMessage(msg llm.Message) ([]anthropic.ContentBlockParamUnion, error) {
	if msg.Role == llm.RoleTool {
		return []anthropic.ContentBlockParamUnion{{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: msg.Metadata.ToolCallID,
				Content: []anthropic.ToolResultBlockParamContentUnion{{
					OfText: &anthropic.TextBlockParam{Text: msg.GetContentString()},
				}},
			},
		}}, nil
	}

	var blocks []anthropic.ContentBlockParamUnion
	if msg.Role == llm.RoleAssistant {
		if text := msg.GetContentString(); text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(text))
		}
		for _, tc := range msg.Metadata.ToolCalls {
			var args map[string]any
			if tc.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					args = map[string]any{"invalid_json_stringified": tc.Arguments}
				}
			} else {
				args = map[string]any{}
			}
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    tc.ID,
					Name:  tc.Name,
					Input: args,
				},
			})
		}
		return blocks, nil
	}

	// User role.
	parts, err := anthropicUserContentParts(msg.Content)
	if err != nil {
		return nil, err
	}
	return parts, nil
}

func anthropicUserContentParts(content llm.Content) ([]anthropic.ContentBlockParamUnion, error) {
	switch content.Kind {
	case llm.ContentText:
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(content.Text)}, nil
	case llm.ContentImage:
		block, err := anthropicImageBlock(*content.Image)
		if err != nil {
			return nil, err
		}
		return []anthropic.ContentBlockParamUnion{block}, nil
	case llm.ContentParts:
		var blocks []anthropic.ContentBlockParamUnion
		for _, p := range content.Parts {
			switch p.Kind {
			case llm.ContentText:
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			case llm.ContentImage:
				if p.Image == nil {
					return nil, fmt.Errorf("image part missing image data")
				}
				block, err := anthropicImageBlock(*p.Image)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, block)
			default:
				return nil, fmt.Errorf("unsupported part kind: %s", p.Kind)
			}
		}
		return blocks, nil
	default:
		return nil, fmt.Errorf("unsupported content kind: %s", content.Kind)
	}
}

const (
	anthropicMaxImageBytes   = 30 * 1024 * 1024
	anthropicMaxImageLongEdge = 1568
)

func anthropicImageBlock(img llm.Image) (anthropic.ContentBlockParamUnion, error) {
	if img.URL != "" && (strings.HasPrefix(img.URL, "https://") || strings.HasPrefix(img.URL, "http://")) {
		return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: img.URL, Type: "url"}), nil
	}

	var dataURL string
	if img.URL != "" {
		dataURL = img.URL
	} else if len(img.Data) > 0 {
		mime := img.MIME
		if mime == "" {
			mime = "image/png"
		}
		dataURL = BuildDataURL(mime, img.Data)
	} else {
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("image has neither URL nor Data")
	}

	prepared, mime, _, err := PrepareImageDataURLForLimits(dataURL, anthropicMaxImageBytes, anthropicMaxImageLongEdge)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("preparing image for anthropic: %w", err)
	}
	_, raw, err := ParseDataURL(prepared)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("re-parsing prepared image data url: %w", err)
	}
	return anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(raw)), nil
}

// Request sends a non-streaming call and translates the SDK's non-streaming
// Message response directly.
func (a *AnthropicAdapter) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	client, err := a.client(opts)
	if err != nil {
		return nil, err
	}
	params, err := a.buildParams(opts.Request)
	if err != nil {
		return nil, err
	}

	message, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAnthropicError(a.Name(), err)
	}

	resp := &llm.Response{
		FinishReason: anthropicFinishReason(string(message.StopReason)),
		Model:        string(message.Model),
		Usage: &llm.Usage{
			InputTokens:  int(message.Usage.InputTokens) + int(message.Usage.CacheReadInputTokens) + int(message.Usage.CacheCreationInputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			TotalTokens:  int(message.Usage.InputTokens) + int(message.Usage.OutputTokens),
		},
	}
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			resp.ContentText += block.Text
		case "tool_use":
			argBytes, _ := json.Marshal(block.Input)
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(argBytes),
			})
		}
	}
	return resp, nil
}

func anthropicFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return llm.FinishStop
	case "max_tokens":
		return llm.FinishLength
	case "tool_use":
		return llm.FinishToolUse
	default:
		return llm.FinishOther
	}
}

// Stream sends a streaming call, translating Anthropic's block-indexed SSE
// events into llm.StreamEvents. Anthropic assigns every content block
// (text or tool_use) a single content-block index; a tool_use block's
// input arrives as a sequence of input_json_delta fragments under that
// same index, which maps directly onto ToolCallDelta.ArgumentsFragment.
func (a *AnthropicAdapter) Stream(ctx context.Context, opts llm.CallOptions) (<-chan Chunk, error) {
	client, err := a.client(opts)
	if err != nil {
		return nil, err
	}
	params, err := a.buildParams(opts.Request)
	if err != nil {
		return nil, err
	}

	stream := client.Messages.NewStreaming(ctx, params)

	out := make(chan Chunk)
	go func() {
		defer close(out)

		var finalMessage anthropic.Message
		blockKind := make(map[int64]string)  // block index -> "text" | "tool_use"
		toolSlot := make(map[int64]int)       // block index -> tool-call slot index
		nextToolSlot := 0

		send := func(c Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			event := stream.Current()
			if err := finalMessage.Accumulate(event); err != nil {
				send(Chunk{Err: llm.NewSerializationError("accumulating anthropic stream", err)})
				return
			}

			switch evt := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				switch evt.ContentBlock.Type {
				case "text":
					blockKind[evt.Index] = "text"
				case "tool_use":
					blockKind[evt.Index] = "tool_use"
					slot := nextToolSlot
					nextToolSlot++
					toolSlot[evt.Index] = slot
					id := evt.ContentBlock.ID
					name := evt.ContentBlock.Name
					if !send(Chunk{Event: llm.ToolCallDeltaEvent(llm.ToolCallDelta{
						Index: slot,
						ID:    &id,
						Name:  &name,
					})}) {
						return
					}
				}

			case anthropic.ContentBlockDeltaEvent:
				switch delta := evt.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if !send(Chunk{Event: llm.ContentDeltaEvent(delta.Text)}) {
						return
					}
				case anthropic.InputJSONDelta:
					slot, ok := toolSlot[evt.Index]
					if !ok {
						continue
					}
					frag := delta.PartialJSON
					if !send(Chunk{Event: llm.ToolCallDeltaEvent(llm.ToolCallDelta{
						Index:             slot,
						ArgumentsFragment: &frag,
					})}) {
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(Chunk{Err: wrapAnthropicError(a.Name(), err)})
			return
		}

		fr := anthropicFinishReason(string(finalMessage.StopReason))
		model := string(finalMessage.Model)
		usage := llm.Usage{
			InputTokens:  int(finalMessage.Usage.InputTokens) + int(finalMessage.Usage.CacheReadInputTokens) + int(finalMessage.Usage.CacheCreationInputTokens),
			OutputTokens: int(finalMessage.Usage.OutputTokens),
		}
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		send(Chunk{Event: llm.MetadataDeltaEvent(llm.MetadataDelta{
			FinishReason: &fr,
			Usage:        &usage,
			Model:        &model,
		})})
		send(Chunk{Event: llm.DoneEvent()})
	}()

	return out, nil
}

func wrapAnthropicError(backend string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		retriable := apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
		return llm.NewProviderError(backend, apiErr.Error(), 0, retriable)
	}
	return llm.NewNetworkError("anthropic request failed", err)
}
