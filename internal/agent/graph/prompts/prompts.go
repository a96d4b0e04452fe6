package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/gorodbot/server/internal/agent/model"
)

//go:embed template/classifier_prompt.txt
var classifierSystemPrompt string

//go:embed template/slots_prompt.txt
var slotsSystemPrompt string

//go:embed template/response_prompt.txt
var responseSystemPrompt string

//go:embed template/conversation_prompt.txt
var conversationSystemPrompt string

//go:embed template/rag_prompt.txt
var ragSystemPrompt string

// render pushes a fully substituted system prompt through the Eino prompt
// component so Prompt callbacks fire, then returns the final string.
func render(ctx context.Context, name, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("%s prompt callbacks: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt callbacks: empty result", name)
	}
	return msgs[0].Content, nil
}

// RenderClassifierSystem renders the category classifier system prompt.
func RenderClassifierSystem(ctx context.Context) (string, error) {
	names := make([]string, 0, len(model.AllCategories))
	for _, c := range model.AllCategories {
		names = append(names, string(c))
	}
	// Known tokens only, so the JSON braces in the template survive intact.
	content := strings.NewReplacer(
		"{categories}", strings.Join(names, ", "),
	).Replace(classifierSystemPrompt)
	return render(ctx, "classifier", content)
}

// RenderSlotsSystem renders the slot checker system prompt for a category.
func RenderSlotsSystem(ctx context.Context, category model.Category) (string, error) {
	content := strings.NewReplacer(
		"{category}", string(category),
		"{required}", strings.Join(model.RequiredSlots(category), ", "),
	).Replace(slotsSystemPrompt)
	return render(ctx, "slots", content)
}

// RenderResponseSystem renders the final answer system prompt with tool results.
func RenderResponseSystem(ctx context.Context, category model.Category, outputs []model.ToolOutput) (string, error) {
	var b strings.Builder
	for _, out := range outputs {
		if out.Success {
			fmt.Fprintf(&b, "### %s\n%s\n\n", out.ToolName, out.Output)
		} else {
			fmt.Fprintf(&b, "### %s\nошибка: данные сейчас недоступны\n\n", out.ToolName)
		}
	}
	results := strings.TrimSpace(b.String())
	if results == "" {
		results = "(данных нет)"
	}
	content := strings.NewReplacer(
		"{category}", string(category),
		"{tool_results}", results,
	).Replace(responseSystemPrompt)
	return render(ctx, "response", content)
}

// RenderConversationSystem renders the small-talk system prompt.
func RenderConversationSystem(ctx context.Context) (string, error) {
	return render(ctx, "conversation", conversationSystemPrompt)
}

// RenderRAGSystem renders the knowledge-base answer prompt with retrieved chunks.
func RenderRAGSystem(ctx context.Context, chunks []string) (string, error) {
	kb := strings.TrimSpace(strings.Join(chunks, "\n\n---\n\n"))
	if kb == "" {
		kb = "(ничего не найдено)"
	}
	content := strings.NewReplacer("{context}", kb).Replace(ragSystemPrompt)
	return render(ctx, "rag", content)
}
