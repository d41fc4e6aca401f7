// Package accumulate merges an ordered StreamEvent sequence into a final
// canonical Response, assembling fragmented tool-call arguments the way a
// provider's own non-streaming response would have delivered them whole.
package accumulate

import (
	"encoding/json"
	"strings"

	"llmrt/llm"
	"llmrt/provider"
)

// state is the accumulator's internal lifecycle: open while consuming
// events, finalized once a Done event is seen, failed once an error chunk
// is seen. Chunks that arrive after finalized or failed are drained but
// have no effect.
type state int

const (
	stateOpen state = iota
	stateFinalized
	stateFailed
)

// toolSlot tracks one tool call's fields as they arrive out of order
// relative to other slots but in order within a slot.
type toolSlot struct {
	id        string
	idSet     bool
	name      string
	nameSet   bool
	arguments strings.Builder
}

// Accumulator consumes a StreamEvent sequence (one event at a time, in
// arrival order) and produces a canonical Response once the sequence ends.
// It is single-use: create one per stream.
type Accumulator struct {
	st state

	text strings.Builder

	slotOrder []int
	slots     map[int]*toolSlot

	finishReason *llm.FinishReason
	usage        *llm.Usage
	model        string

	err error
}

// New returns a fresh Accumulator ready to consume events.
func New() *Accumulator {
	return &Accumulator{slots: make(map[int]*toolSlot)}
}

// Push feeds one event into the accumulator. Calling Push after the
// accumulator has finalized or failed is a no-op: the state machine only
// ever moves forward.
func (a *Accumulator) Push(evt llm.StreamEvent) {
	if a.st != stateOpen {
		return
	}

	switch evt.Kind {
	case llm.EventContentDelta:
		a.text.WriteString(evt.ContentDelta)

	case llm.EventToolCallDelta:
		if evt.ToolCallDelta == nil {
			return
		}
		d := evt.ToolCallDelta
		slot, ok := a.slots[d.Index]
		if !ok {
			slot = &toolSlot{}
			a.slots[d.Index] = slot
			a.slotOrder = append(a.slotOrder, d.Index)
		}
		if d.ID != nil && !slot.idSet {
			slot.id = *d.ID
			slot.idSet = true
		}
		if d.Name != nil && !slot.nameSet {
			slot.name = *d.Name
			slot.nameSet = true
		}
		if d.ArgumentsFragment != nil {
			slot.arguments.WriteString(*d.ArgumentsFragment)
		}

	case llm.EventMetadataDelta:
		if evt.MetadataDelta == nil {
			return
		}
		d := evt.MetadataDelta
		if d.FinishReason != nil {
			fr := *d.FinishReason
			a.finishReason = &fr
		}
		if d.Usage != nil {
			u := *d.Usage
			a.usage = &u
		}
		if d.Model != nil {
			a.model = *d.Model
		}

	case llm.EventDone:
		a.st = stateFinalized
	}
}

// Fail transitions the accumulator to failed, retaining whatever partial
// state was accumulated so far for diagnostics. No further Push calls have
// any effect afterward.
func (a *Accumulator) Fail(err error) {
	if a.st != stateOpen {
		return
	}
	a.st = stateFailed
	a.err = err
}

// Drain consumes a channel of provider.Chunk to completion, pushing events
// and recording the terminal error (if any). It returns once the channel is
// closed, which the Provider contract guarantees happens after exactly one
// Done event or one failed Chunk.
func (a *Accumulator) Drain(chunks <-chan provider.Chunk) {
	for c := range chunks {
		if c.Err != nil {
			a.Fail(c.Err)
			continue
		}
		a.Push(c.Event)
	}
}

// Result finalizes the accumulated state into a canonical Response. It is
// only valid to call once Done (or an error) has been observed; calling it
// on a still-open accumulator freezes whatever partial state exists, which
// is only meaningful for diagnostics, not as a real Response.
//
// Two accumulators fed the identical event sequence produce byte-identical
// Responses: every field here is a pure function of the pushed events, with
// no reliance on wall-clock time or map iteration order (slot order is
// tracked explicitly in slotOrder).
func (a *Accumulator) Result() (*llm.Response, error) {
	if a.st == stateFailed {
		return nil, a.err
	}

	toolCalls := make([]llm.ToolCall, 0, len(a.slotOrder))
	for _, idx := range a.slotOrder {
		slot := a.slots[idx]
		args := slot.arguments.String()
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return nil, llm.NewValidationError("incomplete tool call arguments")
		}
		toolCalls = append(toolCalls, llm.ToolCall{ID: slot.id, Name: slot.name, Arguments: args})
	}

	finish := llm.FinishStop
	if a.finishReason != nil {
		finish = *a.finishReason
	}
	if len(toolCalls) > 0 {
		finish = llm.FinishToolUse
	}

	return &llm.Response{
		ContentText:  a.text.String(),
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage:        a.usage,
		Model:        a.model,
	}, nil
}

// Accumulate is the one-shot convenience form: drain chunks to completion
// and return the finalized Response.
func Accumulate(chunks <-chan provider.Chunk) (*llm.Response, error) {
	a := New()
	a.Drain(chunks)
	return a.Result()
}
