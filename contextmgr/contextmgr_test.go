package contextmgr

import (
	"testing"

	"llmrt/llm"

	"github.com/stretchr/testify/require"
)

func TestCharCounter_CountTextRoundsUp(t *testing.T) {
	c := CharCounter{CharsPerToken: 4}
	require.Equal(t, 0, c.CountText(""))
	require.Equal(t, 1, c.CountText("abc"))
	require.Equal(t, 1, c.CountText("abcd"))
	require.Equal(t, 2, c.CountText("abcde"))
}

func TestCharCounter_CountMessageIncludesOverhead(t *testing.T) {
	c := CharCounter{CharsPerToken: 4, PerMessageOverhead: 3}
	msg := llm.UserMessage("abcd")
	require.Equal(t, 4, c.CountMessage(msg))
}

func mkMessages(n int) []llm.Message {
	messages := []llm.Message{llm.SystemMessage("system prompt that sets the rules")}
	for i := 0; i < n; i++ {
		messages = append(messages, llm.UserMessage("this is a reasonably long user turn to pad out token counts"))
	}
	messages = append(messages, llm.UserMessage("final recent question"))
	return messages
}

func TestSlidingWindow_UnderBudgetReturnsUnchanged(t *testing.T) {
	messages := mkMessages(2)
	counter := CharCounter{CharsPerToken: 4}
	strat := SlidingWindow{KSystem: 1, KRecent: 1}

	kept, err := Fit(messages, 10000, counter, strat)
	require.NoError(t, err)
	require.Equal(t, messages, kept)
}

func TestSlidingWindow_DropsMiddlePreservingHeadAndTail(t *testing.T) {
	messages := mkMessages(20)
	counter := CharCounter{CharsPerToken: 4}
	strat := SlidingWindow{KSystem: 1, KRecent: 1}

	budget := countAll(counter, messages) / 4
	kept, err := Fit(messages, budget, counter, strat)
	require.NoError(t, err)
	require.True(t, len(kept) < len(messages))
	require.Equal(t, messages[0], kept[0])
	require.Equal(t, messages[len(messages)-1], kept[len(kept)-1])
	require.LessOrEqual(t, countAll(counter, kept), budget)
}

func TestSlidingWindow_OverflowReturnsValidationError(t *testing.T) {
	messages := mkMessages(5)
	counter := CharCounter{CharsPerToken: 4}
	strat := SlidingWindow{KSystem: 1, KRecent: 1}

	_, err := Fit(messages, 1, counter, strat)
	require.Error(t, err)
	require.True(t, llm.IsKind(err, llm.KindValidation))
}

func TestImportanceBased_DropsLowestScoredFirst(t *testing.T) {
	messages := []llm.Message{
		llm.SystemMessage("system"),
		llm.UserMessage("low value filler text that should be dropped first because it scores low"),
		llm.UserMessage("high value important message that must survive the cut"),
	}
	counter := CharCounter{CharsPerToken: 4}
	strat := ImportanceBased{Score: func(m llm.Message) float64 {
		if m.GetContentString() == messages[1].GetContentString() {
			return 0
		}
		return 1
	}}

	budget := countAll(counter, messages) - counter.CountMessage(messages[1])
	kept, err := Fit(messages, budget, counter, strat)
	require.NoError(t, err)
	for _, m := range kept {
		require.NotEqual(t, messages[1].GetContentString(), m.GetContentString())
	}
}

func TestImportanceBased_NeverDropsSystemMessages(t *testing.T) {
	messages := []llm.Message{
		llm.SystemMessage("system prompt"),
		llm.UserMessage("filler"),
	}
	counter := CharCounter{CharsPerToken: 4}
	strat := ImportanceBased{Score: func(m llm.Message) float64 { return 0 }}

	kept, err := Fit(messages, 1, counter, strat)
	require.Error(t, err)
	require.Nil(t, kept)
}

func TestSummarization_CompressesMiddleRegion(t *testing.T) {
	messages := mkMessages(10)
	counter := CharCounter{CharsPerToken: 4}
	strat := Summarization{
		ChunkSize: 20,
		KSystem:   1,
		KRecent:   1,
		Summarize: func(chunk []llm.Message) (llm.Message, error) {
			return llm.SystemMessage("summary note"), nil
		},
	}

	budget := countAll(counter, messages) / 3
	kept, err := Fit(messages, budget, counter, strat)
	require.NoError(t, err)
	require.LessOrEqual(t, countAll(counter, kept), budget)
	require.Equal(t, messages[0], kept[0])
	require.Equal(t, messages[len(messages)-1], kept[len(kept)-1])
}

func TestSummarization_FallsBackWhenSummarizerFails(t *testing.T) {
	messages := mkMessages(10)
	counter := CharCounter{CharsPerToken: 4}
	strat := Summarization{
		ChunkSize: 20,
		KSystem:   1,
		KRecent:   1,
		Summarize: func(chunk []llm.Message) (llm.Message, error) {
			return llm.Message{}, errSummarizerUnavailable
		},
	}

	budget := countAll(counter, messages) / 3
	kept, err := Fit(messages, budget, counter, strat)
	require.NoError(t, err)
	require.LessOrEqual(t, countAll(counter, kept), budget)
}

var errSummarizerUnavailable = errValue("summarizer unavailable")

type errValue string

func (e errValue) Error() string { return string(e) }
