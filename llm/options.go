package llm

import "llmrt/secret"

// CallOptions bundles a Request with the secret manager a provider adapter
// should use to resolve its credentials. Keeping secrets out of Request
// itself lets Request stay a plain, loggable, cloneable value.
type CallOptions struct {
	Request Request
	Secrets secret.Container
}

// LogFields returns a flattened map suitable for structured logging: enough
// to diagnose a call without leaking secrets or dumping full message text by
// default.
func (o CallOptions) LogFields() map[string]any {
	return map[string]any{
		"model":        o.Request.Model,
		"messageCount": len(o.Request.Messages),
		"toolCount":    len(o.Request.Tools),
		"toolChoice":   o.Request.ToolChoice,
	}
}
