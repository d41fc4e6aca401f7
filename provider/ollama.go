package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"llmrt/llm"
)

const ollamaDefaultBaseURL = "http://localhost:11434"

// OllamaAdapter speaks Ollama's local /api/chat dialect: a plain JSON POST,
// newline-delimited JSON in reply, no SSE framing and no bearer auth. There
// is no official Go client for it, so this adapter talks http.Client and
// bufio.Scanner directly rather than wrapping a third-party SDK.
type OllamaAdapter struct {
	BaseURL      string
	DefaultModel string
	HTTPClient   *http.Client
}

func NewOllamaAdapter(baseURL, defaultModel string) *OllamaAdapter {
	return &OllamaAdapter{BaseURL: baseURL, DefaultModel: defaultModel}
}

func (a *OllamaAdapter) Name() string { return "ollama" }

func (a *OllamaAdapter) baseURL() string {
	if a.BaseURL != "" {
		return strings.TrimRight(a.BaseURL, "/")
	}
	return ollamaDefaultBaseURL
}

func (a *OllamaAdapter) httpClient() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Minute}
}

func (a *OllamaAdapter) model(req llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	if a.DefaultModel != "" {
		return a.DefaultModel
	}
	return "llama3.1"
}

// ollamaChatRequest is the wire shape of a POST to /api/chat.
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []ollamaTool        `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Format   json.RawMessage     `json:"format,omitempty"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

// ollamaTool is a function declaration offered to the model, distinct from
// ollamaToolCall (the model's invocation of one).
type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaToolDef  `json:"function"`
}

type ollamaToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type ollamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ollamaChatResponse is one NDJSON record. Ollama repeats the same shape for
// both the streaming and non-streaming cases; a non-streaming call is just
// a request with "stream": false answered by a single such record.
type ollamaChatResponse struct {
	Model           string             `json:"model"`
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	DoneReason      string             `json:"done_reason"`
	Error           string             `json:"error"`
	PromptEvalCount int                `json:"prompt_eval_count"`
	EvalCount       int                `json:"eval_count"`
}

func (a *OllamaAdapter) buildRequestBody(req llm.Request, stream bool) (ollamaChatRequest, error) {
	messages, err := ollamaMessagesFromRequest(req.Messages)
	if err != nil {
		return ollamaChatRequest{}, err
	}

	body := ollamaChatRequest{
		Model:    a.model(req),
		Messages: messages,
		Stream:   stream,
	}

	if len(req.Tools) > 0 {
		body.Tools = make([]ollamaTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			params, err := jsonSchemaToMap(t.Parameters)
			if err != nil {
				return ollamaChatRequest{}, llm.NewSerializationError(fmt.Sprintf("tool %s: converting schema", t.Name), err)
			}
			body.Tools = append(body.Tools, ollamaTool{
				Type: "function",
				Function: ollamaToolDef{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  params,
				},
			})
		}
	}

	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case llm.ResponseFormatJSONObject:
			body.Format = json.RawMessage(`"json"`)
		case llm.ResponseFormatJSONSchema:
			// Ollama has no strict-schema mode; it accepts an arbitrary JSON
			// Schema value for "format" and performs best-effort grammar
			// constraining against it. No fallback text instruction is
			// needed because the backend itself degrades gracefully.
			schemaMap, err := jsonSchemaToMap(req.ResponseFormat.Schema)
			if err != nil {
				return ollamaChatRequest{}, llm.NewSerializationError("converting response_format schema", err)
			}
			raw, err := json.Marshal(schemaMap)
			if err != nil {
				return ollamaChatRequest{}, llm.NewSerializationError("marshaling response_format schema", err)
			}
			body.Format = raw
		}
	}

	opts := map[string]any{}
	if req.Parameters.Temperature != nil {
		opts["temperature"] = *req.Parameters.Temperature
	}
	if req.Parameters.TopP != nil {
		opts["top_p"] = *req.Parameters.TopP
	}
	if req.Parameters.MaxOutputTokens != nil {
		opts["num_predict"] = *req.Parameters.MaxOutputTokens
	}
	if req.Parameters.PresencePenalty != nil {
		opts["presence_penalty"] = *req.Parameters.PresencePenalty
	}
	if req.Parameters.FrequencyPenalty != nil {
		opts["frequency_penalty"] = *req.Parameters.FrequencyPenalty
	}
	if len(req.Parameters.Stop) > 0 {
		opts["stop"] = req.Parameters.Stop
	}
	if len(opts) > 0 {
		body.Options = opts
	}

	return body, nil
}

// ollamaMessagesFromRequest maps the canonical roles directly: Ollama has a
// native "tool" role, so unlike the Anthropic adapter no merging into user/
// assistant turns is required.
func ollamaMessagesFromRequest(messages []llm.Message) ([]ollamaChatMessage, error) {
	toolNames := map[string]string{}
	for _, msg := range messages {
		for _, tc := range msg.Metadata.ToolCalls {
			if tc.ID != "" && tc.Name != "" {
				toolNames[tc.ID] = tc.Name
			}
		}
	}

	out := make([]ollamaChatMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, ollamaChatMessage{Role: "system", Content: msg.GetContentString()})
		case llm.RoleAssistant:
			om := ollamaChatMessage{Role: "assistant", Content: msg.GetContentString()}
			if len(msg.Metadata.ToolCalls) > 0 {
				om.ToolCalls = make([]ollamaToolCall, len(msg.Metadata.ToolCalls))
				for i, tc := range msg.Metadata.ToolCalls {
					args := json.RawMessage(tc.Arguments)
					if len(args) == 0 {
						args = json.RawMessage(`{}`)
					}
					om.ToolCalls[i] = ollamaToolCall{
						ID:       tc.ID,
						Function: ollamaToolFunction{Name: tc.Name, Arguments: args},
					}
				}
			}
			out = append(out, om)
		case llm.RoleTool:
			out = append(out, ollamaChatMessage{
				Role:     "tool",
				Content:  msg.GetContentString(),
				ToolName: toolNames[msg.Metadata.ToolCallID],
			})
		default:
			om, err := ollamaUserMessage(msg)
			if err != nil {
				return nil, err
			}
			out = append(out, om)
		}
	}
	return out, nil
}

// ollamaUserMessage renders a user turn, inlining any images as
// base64-encoded entries in the "images" field per Ollama's multimodal
// convention (no data-URL prefix, no mime type carried).
func ollamaUserMessage(msg llm.Message) (ollamaChatMessage, error) {
	switch msg.Content.Kind {
	case llm.ContentText:
		return ollamaChatMessage{Role: "user", Content: msg.Content.Text}, nil
	case llm.ContentImage:
		raw, err := ollamaImageBase64(*msg.Content.Image)
		if err != nil {
			return ollamaChatMessage{}, err
		}
		return ollamaChatMessage{Role: "user", Images: []string{raw}}, nil
	case llm.ContentParts:
		om := ollamaChatMessage{Role: "user"}
		var text strings.Builder
		for _, p := range msg.Content.Parts {
			switch p.Kind {
			case llm.ContentText:
				text.WriteString(p.Text)
			case llm.ContentImage:
				raw, err := ollamaImageBase64(*p.Image)
				if err != nil {
					return ollamaChatMessage{}, err
				}
				om.Images = append(om.Images, raw)
			default:
				return ollamaChatMessage{}, llm.NewValidationError(fmt.Sprintf("ollama: unsupported part kind %q in multi-part content", p.Kind))
			}
		}
		om.Content = text.String()
		return om, nil
	default:
		return ollamaChatMessage{}, llm.NewValidationError(fmt.Sprintf("ollama: unsupported content kind %q", msg.Content.Kind))
	}
}

func ollamaImageBase64(img llm.Image) (string, error) {
	if img.URL != "" {
		if strings.HasPrefix(img.URL, "data:") {
			_, raw, err := ParseDataURL(img.URL)
			if err != nil {
				return "", llm.NewValidationError("ollama: " + err.Error())
			}
			return base64.StdEncoding.EncodeToString(raw), nil
		}
		return "", llm.NewValidationError("ollama: remote image URLs are not supported, only inline data")
	}
	if len(img.Data) == 0 {
		return "", llm.NewValidationError("ollama: image has neither URL nor inline data")
	}
	return base64.StdEncoding.EncodeToString(img.Data), nil
}

func (a *OllamaAdapter) endpoint() string {
	return a.baseURL() + "/api/chat"
}

func (a *OllamaAdapter) newHTTPRequest(ctx context.Context, body ollamaChatRequest) (*http.Request, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewSerializationError("marshaling ollama request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewReader(raw))
	if err != nil {
		return nil, llm.NewNetworkError("building ollama request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func (a *OllamaAdapter) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	body, err := a.buildRequestBody(opts.Request, false)
	if err != nil {
		return nil, err
	}
	httpReq, err := a.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient().Do(httpReq)
	if err != nil {
		return nil, llm.NewNetworkError("calling ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, wrapOllamaHTTPError(resp)
	}

	var decoded ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, llm.NewSerializationError("decoding ollama response", err)
	}
	if decoded.Error != "" {
		return nil, llm.NewProviderError("ollama", decoded.Error, 0, false)
	}

	out := &llm.Response{
		Model: decoded.Model,
		Usage: &llm.Usage{
			InputTokens:  decoded.PromptEvalCount,
			OutputTokens: decoded.EvalCount,
			TotalTokens:  decoded.PromptEvalCount + decoded.EvalCount,
		},
		FinishReason: llm.FinishStop,
	}
	if decoded.Message != nil {
		out.ContentText = decoded.Message.Content
		if len(decoded.Message.ToolCalls) > 0 {
			out.FinishReason = llm.FinishToolUse
			out.ToolCalls = make([]llm.ToolCall, len(decoded.Message.ToolCalls))
			for i, tc := range decoded.Message.ToolCalls {
				out.ToolCalls[i] = llm.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: string(tc.Function.Arguments)}
			}
		}
	}
	return out, nil
}

func (a *OllamaAdapter) Stream(ctx context.Context, opts llm.CallOptions) (<-chan Chunk, error) {
	body, err := a.buildRequestBody(opts.Request, true)
	if err != nil {
		return nil, err
	}
	httpReq, err := a.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient().Do(httpReq)
	if err != nil {
		return nil, llm.NewNetworkError("calling ollama", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, wrapOllamaHTTPError(resp)
	}

	out := make(chan Chunk)
	go ollamaStreamBody(ctx, resp.Body, out)
	return out, nil
}

func ollamaStreamBody(ctx context.Context, body io.ReadCloser, out chan<- Chunk) {
	defer close(out)
	defer body.Close()

	send := func(c Chunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	// Ollama does not assign tool calls an index; every tool_calls entry in
	// a streamed record is treated as complete in that one record, so each
	// gets the next free slot, one ID/Name chunk and one ArgumentsFragment
	// chunk.
	nextToolSlot := 0

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var resp ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			send(Chunk{Err: llm.NewSerializationError("decoding ollama stream record", err)})
			return
		}
		if resp.Error != "" {
			send(Chunk{Err: llm.NewProviderError("ollama", resp.Error, 0, false)})
			return
		}

		if resp.Message != nil {
			if resp.Message.Content != "" {
				if !send(Chunk{Event: llm.ContentDeltaEvent(resp.Message.Content)}) {
					return
				}
			}
			for _, tc := range resp.Message.ToolCalls {
				slot := nextToolSlot
				nextToolSlot++
				id, name := tc.ID, tc.Function.Name
				args := string(tc.Function.Arguments)
				if !send(Chunk{Event: llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: slot, ID: &id, Name: &name})}) {
					return
				}
				if !send(Chunk{Event: llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: slot, ArgumentsFragment: &args})}) {
					return
				}
			}
		}

		if resp.Done {
			finish := ollamaFinishReason(resp.DoneReason, len(resp.Message.getToolCalls()))
			usage := &llm.Usage{
				InputTokens:  resp.PromptEvalCount,
				OutputTokens: resp.EvalCount,
				TotalTokens:  resp.PromptEvalCount + resp.EvalCount,
			}
			model := resp.Model
			if !send(Chunk{Event: llm.MetadataDeltaEvent(llm.MetadataDelta{FinishReason: &finish, Usage: usage, Model: &model})}) {
				return
			}
			send(Chunk{Event: llm.DoneEvent()})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		send(Chunk{Err: llm.NewNetworkError("reading ollama stream", err)})
	}
}

func (m *ollamaChatMessage) getToolCalls() []ollamaToolCall {
	if m == nil {
		return nil
	}
	return m.ToolCalls
}

func ollamaFinishReason(doneReason string, toolCallCount int) llm.FinishReason {
	if toolCallCount > 0 {
		return llm.FinishToolUse
	}
	switch doneReason {
	case "stop", "":
		return llm.FinishStop
	case "length":
		return llm.FinishLength
	default:
		return llm.FinishOther
	}
}

func wrapOllamaHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = resp.Status
	} else {
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			msg = envelope.Error
		}
	}
	retriable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return llm.NewProviderError("ollama", msg, 0, retriable)
}
