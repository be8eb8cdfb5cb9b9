package retrieval

import (
	"bytes"
	"context"
	"regexp"
	"text/template"
	"time"

	"github.com/wekui/ragcore/internal/llmclient"
	"github.com/wekui/ragcore/internal/logger"
)

// Turn is one prior question/answer pair from a conversation, supplied
// by the caller so query rewriting can fold in context the dense/sparse
// legs otherwise never see. This is outside spec.md's stage contract —
// a standalone query has no history to rewrite against — but follows
// the teacher's own query-rewrite plugin when a caller has a session.
type Turn struct {
	Query   string
	Answer  string
	AskedAt time.Time
}

var thinkTagPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

const rewritePromptTemplate = `Given the conversation below, rewrite the latest question into a
standalone question that does not depend on the conversation for context.
If it is already standalone, repeat it unchanged.

{{range .Conversation}}User: {{.Query}}
Assistant: {{.Answer}}
{{end}}
User: {{.Query}}`

// rewriteQuery folds recent turns into a standalone restatement of
// question. On any templating or LLM failure it returns question
// unchanged — rewriting is best-effort, never required for the pipeline
// to proceed.
func rewriteQuery(ctx context.Context, chat llmclient.Chat, question string, history []Turn) string {
	if len(history) == 0 {
		return question
	}

	tmpl, err := template.New("rewrite").Parse(rewritePromptTemplate)
	if err != nil {
		logger.GetLogger(ctx).Warnf("retrieval: rewrite template parse failed: %v", err)
		return question
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Query        string
		Conversation []Turn
	}{Query: question, Conversation: history})
	if err != nil {
		logger.GetLogger(ctx).Warnf("retrieval: rewrite template execute failed: %v", err)
		return question
	}

	resp, err := chat.Complete(ctx, []llmclient.Message{
		{Role: "user", Content: buf.String()},
	}, nil, &llmclient.Options{Temperature: 0.3, MaxTokens: 100})
	if err != nil || resp.Content == "" {
		logger.GetLogger(ctx).Warnf("retrieval: rewrite llm call failed, using original question: %v", err)
		return question
	}

	return thinkTagPattern.ReplaceAllString(resp.Content, "")
}
