package contextmgr

import (
	"sort"

	"llmrt/llm"
)

// Strategy fits messages into budget tokens (as measured by counter),
// returning a subsequence (possibly with inserted synthetic system
// summaries) that preserves the relative order of kept messages.
type Strategy interface {
	Fit(messages []llm.Message, budget int, counter TokenCounter) ([]llm.Message, error)
}

// Fit is the package-level entry point: it delegates to strategy.
func Fit(messages []llm.Message, budget int, counter TokenCounter, strategy Strategy) ([]llm.Message, error) {
	return strategy.Fit(messages, budget, counter)
}

// SlidingWindow keeps the first KSystem system messages and the last
// KRecent messages unconditionally, dropping from the middle region until
// the budget is met.
type SlidingWindow struct {
	KSystem int
	KRecent int
}

func (s SlidingWindow) Fit(messages []llm.Message, budget int, counter TokenCounter) ([]llm.Message, error) {
	if countAll(counter, messages) <= budget {
		return messages, nil
	}

	headEnd := 0
	systemSeen := 0
	for headEnd < len(messages) && systemSeen < s.KSystem {
		if messages[headEnd].Role != llm.RoleSystem {
			break
		}
		systemSeen++
		headEnd++
	}

	tailStart := len(messages) - s.KRecent
	if tailStart < headEnd {
		tailStart = headEnd
	}

	head := messages[:headEnd]
	middle := messages[headEnd:tailStart]
	tail := messages[tailStart:]

	kept := make([]llm.Message, 0, len(head)+len(middle)+len(tail))
	kept = append(kept, head...)
	kept = append(kept, middle...)
	kept = append(kept, tail...)

	// Drop from the front of the middle region first, preserving the most
	// recently added context for as long as possible.
	for countAll(counter, kept) > budget && len(middle) > 0 {
		middle = middle[1:]
		kept = kept[:0]
		kept = append(kept, head...)
		kept = append(kept, middle...)
		kept = append(kept, tail...)
	}

	if countAll(counter, kept) > budget {
		return nil, llm.NewValidationError("context overflow")
	}
	return kept, nil
}

// Scorer assigns an importance score to a message; lower scores are
// dropped first.
type Scorer func(msg llm.Message) float64

// ImportanceBased drops the lowest-scored droppable message first (ties
// broken older-first) until the budget is met. System messages are never
// dropped.
type ImportanceBased struct {
	Score Scorer
}

type scoredMessage struct {
	index int
	msg   llm.Message
	score float64
}

func (ib ImportanceBased) Fit(messages []llm.Message, budget int, counter TokenCounter) ([]llm.Message, error) {
	if countAll(counter, messages) <= budget {
		return messages, nil
	}

	dropped := make(map[int]bool)
	var droppable []scoredMessage
	for i, m := range messages {
		if m.Role == llm.RoleSystem {
			continue
		}
		droppable = append(droppable, scoredMessage{index: i, msg: m, score: ib.Score(m)})
	}

	sort.SliceStable(droppable, func(a, b int) bool {
		return droppable[a].score < droppable[b].score
	})

	remaining := func() []llm.Message {
		kept := make([]llm.Message, 0, len(messages))
		for i, m := range messages {
			if !dropped[i] {
				kept = append(kept, m)
			}
		}
		return kept
	}

	for _, sm := range droppable {
		if countAll(counter, remaining()) <= budget {
			break
		}
		dropped[sm.index] = true
	}

	kept := remaining()
	if countAll(counter, kept) > budget {
		return nil, llm.NewValidationError("context overflow")
	}
	return kept, nil
}

// Summarizer compresses a run of messages into a single short system note.
type Summarizer func(messages []llm.Message) (llm.Message, error)

// Summarization partitions the droppable middle region into chunks of up
// to ChunkSize tokens and replaces each with a synthetic system summary
// produced by Summarize. Falls back to Fallback (typically a SlidingWindow)
// when no further compression is possible.
type Summarization struct {
	ChunkSize int
	Summarize Summarizer
	KSystem   int
	KRecent   int
	Fallback  Strategy
}

func (su Summarization) Fit(messages []llm.Message, budget int, counter TokenCounter) ([]llm.Message, error) {
	if countAll(counter, messages) <= budget {
		return messages, nil
	}

	headEnd := 0
	systemSeen := 0
	for headEnd < len(messages) && systemSeen < su.KSystem {
		if messages[headEnd].Role != llm.RoleSystem {
			break
		}
		systemSeen++
		headEnd++
	}
	tailStart := len(messages) - su.KRecent
	if tailStart < headEnd {
		tailStart = headEnd
	}

	head := messages[:headEnd]
	middle := messages[headEnd:tailStart]
	tail := messages[tailStart:]

	chunks := chunkByTokens(middle, su.ChunkSize, counter)
	summarized := make([]llm.Message, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		note, err := su.Summarize(chunk)
		if err != nil {
			return su.fallback().Fit(messages, budget, counter)
		}
		summarized = append(summarized, note)
	}

	kept := make([]llm.Message, 0, len(head)+len(summarized)+len(tail))
	kept = append(kept, head...)
	kept = append(kept, summarized...)
	kept = append(kept, tail...)

	if countAll(counter, kept) <= budget {
		return kept, nil
	}

	// No further compression possible within this pass; fall back.
	return su.fallback().Fit(messages, budget, counter)
}

func (su Summarization) fallback() Strategy {
	if su.Fallback != nil {
		return su.Fallback
	}
	return SlidingWindow{KSystem: su.KSystem, KRecent: su.KRecent}
}

func chunkByTokens(messages []llm.Message, chunkSize int, counter TokenCounter) [][]llm.Message {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	var chunks [][]llm.Message
	var current []llm.Message
	currentTokens := 0
	for _, m := range messages {
		cost := counter.CountMessage(m)
		if currentTokens > 0 && currentTokens+cost > chunkSize {
			chunks = append(chunks, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, m)
		currentTokens += cost
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
