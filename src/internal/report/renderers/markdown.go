package renderers

import (
	"fmt"
	"strings"
)

type MarkdownRenderer struct{}

func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// RenderFunctionRow renders one guarded function as a table row.
func (r *MarkdownRenderer) RenderFunctionRow(function string, modifiers, senderConditions, written []string) string {
	return fmt.Sprintf("| `%s` | %s | %s | %s |\n",
		function, inlineList(modifiers), inlineList(senderConditions), inlineList(written))
}

// RenderContract renders the table of one contract.
func (r *MarkdownRenderer) RenderContract(name string, rows []string) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("### %s\n\n", name))
	if len(rows) == 0 {
		result.WriteString("_No guarded functions._\n\n")
		return result.String()
	}
	result.WriteString("| Function | Modifiers | msg.sender conditions | Writes |\n")
	result.WriteString("|---|---|---|---|\n")
	for _, row := range rows {
		result.WriteString(row)
	}
	result.WriteString("\n")
	return result.String()
}

// RenderStorageValues renders the resolved storage values of an address.
func (r *MarkdownRenderer) RenderStorageValues(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var result strings.Builder
	result.WriteString("**Storage values**:\n\n")
	for i, name := range names {
		result.WriteString(fmt.Sprintf("- `%s` = `%s`\n", name, values[i]))
	}
	result.WriteString("\n")
	return result.String()
}

func inlineList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "`" + strings.ReplaceAll(item, "|", "\\|") + "`"
	}
	return strings.Join(quoted, "<br>")
}
