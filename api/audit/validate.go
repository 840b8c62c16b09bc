package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"AcadFinAudit/internal/llm"
	"AcadFinAudit/internal/regstore"
)

// Validator cross-checks flagged disbursement rows against the
// ingested regulation corpus through the chat model.
type Validator struct {
	LLM   *llm.Client
	Store *regstore.Store
	TopK  int
}

const validateSystemPrompt = `당신은 대학 재무팀의 지출 검증 전문가입니다. 지출결의 항목이 학교 규정을 위반하는지 판정합니다.
반드시 아래 형식의 JSON만 코드 블록으로 출력하세요:
` + "```json" + `
{"violation": true/false, "violation_type": "유형", "explanation": "판단 근거", "regulation_reference": "관련 규정 조항 또는 N/A"}
` + "```"

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// ValidateRow reviews one row. notes are the local rule findings for
// that row; when any exist the result is forced to a violation and the
// notes are prepended to the model's explanation. Transport or parse
// failures never abort a batch: they come back as a synthetic
// "validation error" verdict.
func (v *Validator) ValidateRow(ctx context.Context, t *Table, row int, notes []string) Verdict {
	item := describeRow(t, row)

	var regContext string
	if v.Store != nil {
		vecs, err := v.LLM.Embed(ctx, []string{item})
		if err == nil && len(vecs) == 1 {
			chunks, err := v.Store.Search(ctx, vecs[0], v.TopK)
			if err == nil {
				parts := make([]string, len(chunks))
				for i, c := range chunks {
					parts[i] = c.Content
				}
				regContext = strings.Join(parts, "\n---\n")
			}
		}
	}

	verdict, err := v.askModel(ctx, item, regContext, notes)
	if err != nil {
		return Verdict{
			Violation:           true,
			ViolationType:       "validation error",
			Explanation:         err.Error(),
			RegulationReference: "N/A",
		}
	}
	if len(notes) > 0 {
		verdict.Violation = true
		if verdict.ViolationType == "" {
			verdict.ViolationType = "규정 위반 의심"
		}
		verdict.Explanation = strings.Join(notes, "; ") + " | " + verdict.Explanation
	}
	return verdict
}

func (v *Validator) askModel(ctx context.Context, item, regContext string, notes []string) (Verdict, error) {
	var b strings.Builder
	b.WriteString("## 지출 항목\n")
	b.WriteString(item)
	if len(notes) > 0 {
		b.WriteString("\n\n## 사전 점검 결과\n")
		b.WriteString(strings.Join(notes, "\n"))
	}
	if regContext != "" {
		b.WriteString("\n\n## 관련 규정\n")
		b.WriteString(regContext)
	}
	b.WriteString("\n\n위 항목의 규정 위반 여부를 판정하세요.")

	reply, err := v.LLM.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: validateSystemPrompt},
		{Role: "user", Content: b.String()},
	})
	if err != nil {
		return Verdict{}, err
	}
	verdict, err := parseVerdict(reply)
	if err != nil {
		// The model answered but not in the agreed shape. Fall back to
		// the local findings instead of discarding the row.
		return fallbackVerdict(reply, notes), nil
	}
	return verdict, nil
}

func fallbackVerdict(reply string, notes []string) Verdict {
	v := Verdict{
		Violation:           len(notes) > 0,
		ViolationType:       "분석 불가",
		Explanation:         strings.TrimSpace(reply),
		RegulationReference: "N/A",
	}
	if len(notes) > 0 {
		v.ViolationType = "기본 검증"
	}
	return v
}

// parseVerdict extracts the fenced JSON verdict from a model reply.
// Replies without a fence are tried as bare JSON before giving up.
func parseVerdict(reply string) (Verdict, error) {
	payload := strings.TrimSpace(reply)
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		payload = m[1]
	}
	var verdict Verdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("unparseable verdict: %w", err)
	}
	return verdict, nil
}

// describeRow renders a row as "header: value" lines, skipping empty
// cells, for inclusion in prompts and embedding queries.
func describeRow(t *Table, row int) string {
	var b strings.Builder
	for _, h := range t.Headers {
		val := strings.TrimSpace(t.Value(row, h))
		if val == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", h, val)
	}
	return b.String()
}

// rowNotes converts a row's triggered flags into human-readable
// findings for the validation prompt.
func rowNotes(flags *FlagTable, row int) []string {
	notes := make([]string, 0)
	for _, rule := range flags.Rules {
		if flags.Flags[rule][row] {
			notes = append(notes, ruleNote(rule))
		}
	}
	return notes
}
