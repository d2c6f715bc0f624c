package assistant

import (
	"fmt"
	"strings"
)

// ============================================================================
// PROMPTS: what is sent to the conversational model
// ============================================================================
// The model call itself lives outside this module. These builders fix the
// contract: the model sees the data summary, never raw rows, and replies in
// prose with an optional ```action block that ParseSuggestion understands.
// ============================================================================

// Views the navigate action may name.
var Views = []string{"report", "analytics", "claims", "performance", "partners", "data-manager"}

// Templates the create_template action may name.
var Templates = []string{
	"executive-summary", "sales-performance", "claims-analysis",
	"risk-monitor", "dealer-insights", "product-focus",
}

// FilterKeys the filters action may set.
var FilterKeys = []string{"dealer", "product", "year", "month", "make", "claim_status", "date_from", "date_to"}

// SystemInstructions returns the standing instructions for the model.
func SystemInstructions() string {
	var b strings.Builder
	b.WriteString(`You are Clarity AI, an insurance data analytics assistant embedded in the Clarity BI dashboard.
Each message carries the live data under sections such as === MONTHLY SALES ===,
=== DEALER PERFORMANCE ===, === PRODUCT MIX === and === CLAIMS BY STATUS ===.

RULES:
- Always answer from the exact numbers in the data context.
- Never claim data is missing when it is present in the context.
- Lead with the direct answer in one sentence, then supporting detail.
- Use **bold** for key numbers and periods and bullet points for lists.

ACTIONS:
When the answer relates to navigating or filtering the dashboard, end the reply
with one JSON object wrapped in a fenced block tagged "action".
`)
	fmt.Fprintf(&b, "- navigate: one of %s\n", quoteList(Views))
	fmt.Fprintf(&b, "- filters: object with keys %s, using exact values from AVAILABLE FILTER VALUES\n", strings.Join(FilterKeys, ", "))
	fmt.Fprintf(&b, "- create_template: one of %s\n", quoteList(Templates))
	b.WriteString(`
Example:
` + "```action" + `
{"navigate": "claims", "filters": {"claim_status": "Approved"}}
` + "```" + `
Only include an action when it adds clear value.`)
	return b.String()
}

// BuildPrompt wraps a user question with the data summary it must be
// answered from.
func BuildPrompt(dataContext, question string) string {
	return fmt.Sprintf(`--- LIVE DATA CONTEXT (use this to answer precisely) ---
%s
--- END DATA CONTEXT ---

USER QUESTION: %s

Answer using the actual numbers from the data context above.`, dataContext, strings.TrimSpace(question))
}

// maxAnswerInPrompt bounds how much of the previous answer is echoed back.
const maxAnswerInPrompt = 500

// FollowUpPrompt asks for n short follow-up questions to a finished exchange.
// The reply is meant for CleanQuestions.
func FollowUpPrompt(question, answer string, n int) string {
	if len(answer) > maxAnswerInPrompt {
		answer = answer[:maxAnswerInPrompt]
	}
	return fmt.Sprintf(`Based on this conversation about insurance analytics data:

User asked: %s
AI answered: %s

Suggest exactly %d short follow-up questions the user might want to ask next.
Put each question on its own line with no numbering and no explanation.
Keep them under 12 words each.`, question, answer, n)
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = `"` + it + `"`
	}
	return strings.Join(quoted, " | ")
}
