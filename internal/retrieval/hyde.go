package retrieval

import (
	"context"

	"github.com/wekui/ragcore/internal/llmclient"
	"github.com/wekui/ragcore/internal/logger"
)

// expandHyDE implements spec.md §4.1 step 2: one LLM call asking for a
// hypothetical passage that would answer the question. On any error it
// degrades silently to the original question and reports hydeUsed=false,
// so dense search always has something to embed.
func expandHyDE(ctx context.Context, chat llmclient.Chat, promptTemplate, question string) (expanded string, hydeUsed, hydeFailed bool) {
	resp, err := chat.Complete(ctx, []llmclient.Message{
		{Role: "user", Content: promptTemplate + "\n\n" + question},
	}, nil, &llmclient.Options{Temperature: 0.7})
	if err != nil || resp.Content == "" {
		logger.GetLogger(ctx).Warnf("retrieval: hyde expansion failed, using original question for dense search: %v", err)
		return question, false, true
	}
	return resp.Content, true, false
}
