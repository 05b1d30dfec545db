package rag

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/docqa/engine/domain"
)

// buildPrompt lays out system instructions, retrieved context, the
// conversation so far and the new question.
func buildPrompt(system string, hits []domain.Hit, history []domain.Turn, question string, contextChars int) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(system))
	b.WriteString("\n\n")

	b.WriteString("Context:\n")
	if len(hits) == 0 {
		b.WriteString("(no relevant documents found)\n")
	}
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] (source: %s)\n%s\n\n", i+1, h.Record.SourceFile, strings.TrimSpace(domain.Truncate(h.Record.Text, contextChars)))
	}

	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		writeHistory(&b, history)
	}

	fmt.Fprintf(&b, "\nHuman: %s\nAssistant:", strings.TrimSpace(question))
	return b.String()
}

func condensePrompt(history []domain.Turn, question string) string {
	var b strings.Builder
	b.WriteString("Given the following conversation and a follow up question, rephrase the follow up question ")
	b.WriteString("to be a standalone question, in its original language. Reply with the question only.\n\n")
	b.WriteString("Chat history:\n")
	writeHistory(&b, history)
	fmt.Fprintf(&b, "\nFollow up question: %s\nStandalone question:", strings.TrimSpace(question))
	return b.String()
}

func writeHistory(b *strings.Builder, history []domain.Turn) {
	for _, t := range history {
		fmt.Fprintf(b, "Human: %s\nAssistant: %s\n", t.Question, t.Answer)
	}
}
