package answer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/xhad/pdfqa/internal/models"
)

// Parse stages, in the order they are tried.
const (
	StageJSON        = "json"
	StageSpan        = "span"
	StageAnswerField = "answer_field"
	StagePlainText   = "plain_text"
)

var (
	fencedBlock   = regexp.MustCompile("```(?:json|JSON)?\\s*([\\s\\S]*?)```")
	answerField   = regexp.MustCompile(`"answer"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	evidenceLabel = regexp.MustCompile(`(?i)EVIDENCE\s*\[(\d+)\]`)
)

// Parsed is what one stage of the parse chain recovered from the model output.
// Citations are left raw until they are re-grounded against the evidence.
type Parsed struct {
	Stage     string
	Answer    string
	Citations []gjson.Result
}

type strategy struct {
	stage string
	parse func(text string) (Parsed, bool)
}

var chain = []strategy{
	{StageJSON, parseWhole},
	{StageSpan, parseSpan},
	{StageAnswerField, parseAnswerField},
	{StagePlainText, parsePlainText},
}

// Parse runs the chain until a stage succeeds. The last stage always does.
func Parse(raw string) Parsed {
	// a complete object wins even when its strings contain fences
	if p, ok := parseWhole(strings.TrimSpace(raw)); ok {
		p.Stage = StageJSON
		return p
	}

	text := stripFences(raw)
	for _, s := range chain {
		if p, ok := s.parse(text); ok {
			p.Stage = s.stage
			return p
		}
	}
	// unreachable, the plain-text stage never fails
	return Parsed{Stage: StagePlainText, Answer: text}
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	// truncated output can open a fence without closing it
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimPrefix(text, "JSON")
	}
	return strings.TrimSpace(text)
}

func parseObject(text string) (Parsed, bool) {
	if !gjson.Valid(text) {
		return Parsed{}, false
	}
	doc := gjson.Parse(text)
	if !doc.IsObject() {
		return Parsed{}, false
	}

	var p Parsed
	if a := doc.Get("answer"); a.Type == gjson.String {
		p.Answer = a.String()
	}
	if c := doc.Get("citations"); c.IsArray() {
		p.Citations = c.Array()
	}
	return p, true
}

func parseWhole(text string) (Parsed, bool) {
	return parseObject(text)
}

// candidateSpan runs from the first '{' to the last '}', or to the end of the
// text when no closing brace follows.
func candidateSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(text, "}")
	if end <= start {
		return text[start:], true
	}
	return text[start : end+1], true
}

func parseSpan(text string) (Parsed, bool) {
	span, ok := candidateSpan(text)
	if !ok {
		return Parsed{}, false
	}
	return parseObject(span)
}

func parseAnswerField(text string) (Parsed, bool) {
	span, ok := candidateSpan(text)
	if !ok {
		return Parsed{}, false
	}
	m := answerField.FindStringSubmatch(span)
	if m == nil {
		return Parsed{}, false
	}
	// the capture is the body of a JSON string, let gjson undo the escapes
	return Parsed{Answer: gjson.Parse(`"` + m[1] + `"`).String()}, true
}

func parsePlainText(text string) (Parsed, bool) {
	clean := evidenceLabel.ReplaceAllString(text, "[$1]")
	clean = strings.TrimSpace(cutUnmatchedBrace(clean))
	if clean == "" {
		clean = text
	}
	return Parsed{Answer: clean}, true
}

// cutUnmatchedBrace drops everything from the outermost '{' that is never closed.
func cutUnmatchedBrace(text string) string {
	var open []int
	for i, r := range text {
		switch r {
		case '{':
			open = append(open, i)
		case '}':
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		}
	}
	if len(open) == 0 {
		return text
	}
	return text[:open[0]]
}

// Reground keeps citations whose ref is an integer in 1..len(evidence) and rebuilds
// each of them from the evidence item it points at.
func Reground(raw []gjson.Result, evidence []models.EvidenceItem) []models.Citation {
	citations := []models.Citation{}
	for _, c := range raw {
		if !c.IsObject() {
			continue
		}
		ref, ok := integerRef(c.Get("ref"))
		if !ok || ref < 1 || ref > len(evidence) {
			continue
		}
		citations = append(citations, evidence[ref-1].Cite(ref))
	}
	return citations
}

func integerRef(v gjson.Result) (int, bool) {
	if v.Type != gjson.Number || strings.ContainsAny(v.Raw, ".eE") {
		return 0, false
	}
	n, err := strconv.Atoi(v.Raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
