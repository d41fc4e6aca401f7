package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"llmrt/llm"
	"llmrt/utils"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
	"github.com/openai/openai-go/v3/shared/constant"
)

const openaiDefaultModel = "gpt-5.2"

// OpenAIAdapter speaks the OpenAI chat-completions dialect, which also
// covers the many OpenAI-compatible third-party endpoints (set BaseURL to
// point at one of those).
type OpenAIAdapter struct {
	BaseURL      string
	DefaultModel string
	// ProviderName is used to look up "<ProviderName>_API_KEY" in the
	// secret manager. Defaults to "OPENAI".
	ProviderName string
}

func NewOpenAIAdapter(baseURL, defaultModel string) *OpenAIAdapter {
	return &OpenAIAdapter{BaseURL: baseURL, DefaultModel: defaultModel}
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) secretName() string {
	if a.ProviderName != "" {
		return a.ProviderName + "_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func (a *OpenAIAdapter) client(opts llm.CallOptions) (*openai.Client, error) {
	key, err := opts.Secrets.GetSecret(a.secretName())
	if err != nil {
		return nil, llm.NewValidationError(fmt.Sprintf("resolving %s: %s", a.secretName(), err))
	}

	httpClient := &http.Client{Timeout: 45 * time.Minute}
	clientOptions := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithHTTPClient(httpClient),
	}
	if a.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(a.BaseURL))
	}
	client := openai.NewClient(clientOptions...)
	return &client, nil
}

func (a *OpenAIAdapter) model(req llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	if a.DefaultModel != "" {
		return a.DefaultModel
	}
	return openaiDefaultModel
}

func (a *OpenAIAdapter) buildParams(req llm.Request) (openai.ChatCompletionNewParams, error) {
	chatMessages, err := openaiMessagesFromRequest(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, llm.NewSerializationError("building openai messages", err)
	}

	params := openai.ChatCompletionNewParams{
		Messages: chatMessages,
		Model:    shared.ChatModel(a.model(req)),
	}

	if req.Parameters.Temperature != nil {
		params.Temperature = openai.Float(*req.Parameters.Temperature)
	}
	if req.Parameters.TopP != nil {
		params.TopP = openai.Float(*req.Parameters.TopP)
	}
	if req.Parameters.MaxOutputTokens != nil {
		params.MaxCompletionTokens = param.NewOpt(int64(*req.Parameters.MaxOutputTokens))
	}
	if req.Parameters.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*req.Parameters.PresencePenalty)
	}
	if req.Parameters.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.Parameters.FrequencyPenalty)
	}
	if len(req.Tools) > 0 {
		toolsToUse := req.Tools
		if req.ToolChoice.Type == llm.ToolChoiceTool {
			toolsToUse = filterToolsByName(req.Tools, req.ToolChoice.Name)
		}
		tools, err := openaiToolsFromDescriptors(toolsToUse)
		if err != nil {
			return openai.ChatCompletionNewParams{}, llm.NewSerializationError("converting tools", err)
		}
		params.Tools = tools
		params.ToolChoice = openaiToolChoiceFrom(req.ToolChoice, toolsToUse)
	}

	if req.ResponseFormat != nil {
		format, err := openaiResponseFormatFrom(*req.ResponseFormat)
		if err != nil {
			return openai.ChatCompletionNewParams{}, llm.NewSerializationError("converting response format", err)
		}
		params.ResponseFormat = format
	}

	return params, nil
}

func filterToolsByName(tools []llm.ToolDescriptor, name string) []llm.ToolDescriptor {
	for _, t := range tools {
		if t.Name == name {
			return []llm.ToolDescriptor{t}
		}
	}
	return tools
}

func openaiResponseFormatFrom(rf llm.ResponseFormat) (openai.ChatCompletionNewParamsResponseFormatUnion, error) {
	switch rf.Type {
	case llm.ResponseFormatJSONObject:
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: constant.JSONObject("json_object"),
			},
		}, nil
	case llm.ResponseFormatJSONSchema:
		schemaMap, err := jsonSchemaToMap(rf.Schema)
		if err != nil {
			return openai.ChatCompletionNewParamsResponseFormatUnion{}, err
		}
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				Type: constant.JSONSchema("json_schema"),
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: schemaMap,
					Strict: openai.Bool(rf.Strict),
				},
			},
		}, nil
	default:
		return openai.ChatCompletionNewParamsResponseFormatUnion{}, nil
	}
}

func jsonSchemaToMap(schema any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{}, nil
	}
	var result map[string]any
	if err := utils.Transcode(schema, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func openaiToolsFromDescriptors(tools []llm.ToolDescriptor) ([]openai.ChatCompletionToolUnionParam, error) {
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		params, err := jsonSchemaToMap(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		result = append(result, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: param.NewOpt(tool.Description),
					Parameters:  params,
				},
			},
		})
	}
	return result, nil
}

func openaiToolChoiceFrom(choice llm.ToolChoice, tools []llm.ToolDescriptor) openai.ChatCompletionToolChoiceOptionUnionParam {
	if len(tools) == 0 {
		return openai.ChatCompletionToolChoiceOptionUnionParam{}
	}
	switch choice.Type {
	case llm.ToolChoiceRequired:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("required")}
	case llm.ToolChoiceTool:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}
	case llm.ToolChoiceNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("none")}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}
	}
}

func openaiMessagesFromRequest(messages []llm.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var result []openai.ChatCompletionMessageParamUnion

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			result = append(result, openai.SystemMessage(msg.GetContentString()))

		case llm.RoleUser:
			if msg.Content.Kind == llm.ContentText {
				result = append(result, openai.UserMessage(msg.Content.Text))
				continue
			}
			parts, err := openaiUserContentParts(msg.Content)
			if err != nil {
				return nil, err
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: parts,
					},
				},
			})

		case llm.RoleAssistant:
			if len(msg.Metadata.ToolCalls) == 0 {
				result = append(result, openai.AssistantMessage(msg.GetContentString()))
				continue
			}
			assistantMsg := &openai.ChatCompletionAssistantMessageParam{}
			if text := msg.GetContentString(); text != "" {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(text),
				}
			}
			for _, tc := range msg.Metadata.ToolCalls {
				assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: assistantMsg})

		case llm.RoleTool:
			result = append(result, openai.ToolMessage(msg.GetContentString(), msg.Metadata.ToolCallID))

		default:
			return nil, fmt.Errorf("unsupported role: %s", msg.Role)
		}
	}

	return result, nil
}

func openaiUserContentParts(content llm.Content) ([]openai.ChatCompletionContentPartUnionParam, error) {
	var parts []llm.Part
	switch content.Kind {
	case llm.ContentText:
		return []openai.ChatCompletionContentPartUnionParam{{
			OfText: &openai.ChatCompletionContentPartTextParam{Text: content.Text},
		}}, nil
	case llm.ContentImage:
		parts = []llm.Part{{Kind: llm.ContentImage, Image: content.Image}}
	case llm.ContentParts:
		parts = content.Parts
	default:
		return nil, fmt.Errorf("unsupported content kind for user role: %s", content.Kind)
	}

	var result []openai.ChatCompletionContentPartUnionParam
	for _, p := range parts {
		switch p.Kind {
		case llm.ContentText:
			result = append(result, openai.ChatCompletionContentPartUnionParam{
				OfText: &openai.ChatCompletionContentPartTextParam{Text: p.Text},
			})
		case llm.ContentImage:
			if p.Image == nil {
				return nil, fmt.Errorf("image part missing image data")
			}
			url, err := openaiImageURL(*p.Image)
			if err != nil {
				return nil, err
			}
			result = append(result, openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: url, Detail: "high"},
				},
			})
		default:
			return nil, fmt.Errorf("unsupported part kind for user role: %s", p.Kind)
		}
	}
	return result, nil
}

func openaiImageURL(img llm.Image) (string, error) {
	if img.URL != "" {
		url := img.URL
		if strings.HasPrefix(url, "data:") {
			newURL, _, _, err := PrepareImageDataURLForLimits(url, 20*1024*1024, 2048)
			if err != nil {
				return "", fmt.Errorf("preparing image for openai: %w", err)
			}
			return newURL, nil
		}
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			return url, nil
		}
		return "", fmt.Errorf("unsupported image URL scheme: %s", url)
	}
	if len(img.Data) > 0 {
		mime := img.MIME
		if mime == "" {
			mime = "image/png"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Data))
		newURL, _, _, err := PrepareImageDataURLForLimits(dataURL, 20*1024*1024, 2048)
		if err != nil {
			return "", fmt.Errorf("preparing image for openai: %w", err)
		}
		return newURL, nil
	}
	return "", fmt.Errorf("image has neither URL nor Data")
}

// Request sends a non-streaming chat-completions call.
func (a *OpenAIAdapter) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	client, err := a.client(opts)
	if err != nil {
		return nil, err
	}
	params, err := a.buildParams(opts.Request)
	if err != nil {
		return nil, err
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapOpenAIError(a.Name(), err)
	}
	if len(completion.Choices) == 0 {
		return nil, llm.NewProviderError(a.Name(), "empty choices in response", 0, false)
	}

	choice := completion.Choices[0]
	resp := &llm.Response{
		ContentText:  choice.Message.Content,
		FinishReason: openaiFinishReason(choice.FinishReason),
		Model:        completion.Model,
		Usage: &llm.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

func openaiFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "stop":
		return llm.FinishStop
	case "length":
		return llm.FinishLength
	case "tool_calls", "function_call":
		return llm.FinishToolUse
	case "content_filter":
		return llm.FinishContentFilter
	default:
		return llm.FinishOther
	}
}

// Stream sends a streaming chat-completions call, translating OpenAI's
// index-keyed tool-call deltas into llm.ToolCallDelta events as they arrive.
func (a *OpenAIAdapter) Stream(ctx context.Context, opts llm.CallOptions) (<-chan Chunk, error) {
	client, err := a.client(opts)
	if err != nil {
		return nil, err
	}
	params, err := a.buildParams(opts.Request)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := client.Chat.Completions.NewStreaming(ctx, params)

	out := make(chan Chunk)
	go func() {
		defer close(out)

		seenToolSlots := make(map[int64]bool)
		var finishReason string
		var usage llm.Usage
		var model string

		send := func(c Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			chunk := stream.Current()
			if chunk.Model != "" {
				model = chunk.Model
			}
			if chunk.Usage.JSON.PromptTokens.Valid() {
				usage.InputTokens = int(chunk.Usage.PromptTokens)
				usage.OutputTokens = int(chunk.Usage.CompletionTokens)
				usage.TotalTokens = int(chunk.Usage.TotalTokens)
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}

			if choice.Delta.Content != "" {
				if !send(Chunk{Event: llm.ContentDeltaEvent(choice.Delta.Content)}) {
					return
				}
			}

			for _, tc := range choice.Delta.ToolCalls {
				delta := llm.ToolCallDelta{Index: int(tc.Index)}
				if !seenToolSlots[tc.Index] {
					seenToolSlots[tc.Index] = true
					if tc.ID != "" {
						id := tc.ID
						delta.ID = &id
					}
					if tc.Function.Name != "" {
						name := cleanOpenAIToolName(tc.Function.Name)
						delta.Name = &name
					}
				}
				if tc.Function.Arguments != "" {
					frag := tc.Function.Arguments
					delta.ArgumentsFragment = &frag
				}
				if !send(Chunk{Event: llm.ToolCallDeltaEvent(delta)}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(Chunk{Err: wrapOpenAIError(a.Name(), err)})
			return
		}

		fr := openaiFinishReason(finishReason)
		send(Chunk{Event: llm.MetadataDeltaEvent(llm.MetadataDelta{
			FinishReason: &fr,
			Usage:        &usage,
			Model:        &model,
		})})
		send(Chunk{Event: llm.DoneEvent()})
	}()

	return out, nil
}

func cleanOpenAIToolName(name string) string {
	for _, prefix := range []string{"tools.", "tool.", "functions.", "function."} {
		name = strings.TrimPrefix(name, prefix)
	}
	return name
}

// wrapOpenAIError extracts detailed error information from OpenAI API
// errors. The openai-go library's Error type only populates its JSON
// fields when the response body matches OpenAI's error format; many
// OpenAI-compatible third-party endpoints don't, leaving those fields
// empty, so fall back to dumping the raw response body.
func wrapOpenAIError(backend string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return llm.NewNetworkError("openai request failed", err)
	}

	retriable := apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	var retryAfter float64
	if ra := apiErr.Response.Header.Get("Retry-After"); ra != "" {
		fmt.Sscanf(ra, "%f", &retryAfter)
	}

	message := apiErr.Message
	if message == "" {
		dump := apiErr.DumpResponse(true)
		body := dump
		for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
			if parts := bytes.SplitN(dump, sep, 2); len(parts) == 2 {
				body = bytes.TrimSpace(parts[1])
				break
			}
		}
		message = string(body)
	}

	return llm.NewProviderError(backend, fmt.Sprintf("%d %s: %s", apiErr.StatusCode, apiErr.Type, message), retryAfter, retriable)
}
