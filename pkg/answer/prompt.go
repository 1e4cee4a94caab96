package answer

import (
	"fmt"
	"strings"

	"github.com/xhad/pdfqa/internal/models"
)

const systemPrompt = "You are an academic assistant. " +
	"Answer ONLY from the evidence provided. " +
	"If the evidence does not answer the question, say \"" + NotFoundAnswer + "\". " +
	"Never add information that is not in the evidence. " +
	"Write in an explanatory, well-contextualised academic register; " +
	"do not brush the question off with a single short sentence. " +
	"Use at least three sentences. " +
	"Use two to four paragraphs when needed, but never go beyond the evidence."

// EvidenceBlock numbers the evidence from 1 in the order given.
func EvidenceBlock(evidence []models.EvidenceItem) string {
	if len(evidence) == 0 {
		return "(NO EVIDENCE)"
	}

	blocks := make([]string, 0, len(evidence))
	for i, e := range evidence {
		header := fmt.Sprintf("[%d] %s | %s | %s", i+1, e.DocumentTitle, e.SectionPath, e.Pages())
		blocks = append(blocks, header+"\n"+e.Excerpt)
	}
	return strings.Join(blocks, "\n\n")
}

// BuildPrompts returns the system and user prompts for one question.
func BuildPrompts(question string, evidence []models.EvidenceItem) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "EVIDENCE:\n%s\n\n", EvidenceBlock(evidence))
	b.WriteString("IMPORTANT RULES:\n")
	b.WriteString("1. Reply with a single JSON object and nothing else.\n")
	b.WriteString("2. Cite evidence in the answer as [1], [2] using the numbers above (do not write EVIDENCE).\n")
	b.WriteString("3. Only cite numbers that appear in the evidence list.\n\n")
	b.WriteString("JSON format:\n")
	b.WriteString("{\n")
	b.WriteString(`  "answer": "Answer text here... reference [1]... reference [2]...",` + "\n")
	b.WriteString(`  "citations": [` + "\n")
	b.WriteString(`    {"ref": 1, "document": "Document title", "section": "Section", "pages": "p.X-Y", "excerpt": "Quoted text..."}` + "\n")
	b.WriteString("  ]\n")
	b.WriteString("}\n")

	return systemPrompt, b.String()
}
