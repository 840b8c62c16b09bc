package regbot

import (
	"regexp"
	"strings"
)

// The assistant is asked to close every answer with a "추천 질문"
// section. These patterns locate that section so it can be split off
// and rendered as clickable follow-ups instead of raw text.
var (
	followupHeader = regexp.MustCompile(`(?m)^\s*#{0,6}\s*\**\s*(추천\s*질문|관련\s*질문|후속\s*질문)\s*\**\s*:?\s*$`)
	followupItem   = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*(.+?)\s*$`)
)

// defaultFollowUps is served when the model omitted the section.
var defaultFollowUps = []string{
	"출장비 정산 기한은 어떻게 되나요?",
	"법인카드 사용이 제한되는 업종은 무엇인가요?",
	"지출결의서에 첨부해야 하는 증빙은 무엇인가요?",
}

// ExtractFollowUps splits the recommended-questions section off an
// answer. It returns the answer without that section and up to three
// extracted questions; when the section is missing or empty the
// defaults are returned.
func ExtractFollowUps(answer string) (string, []string) {
	loc := followupHeader.FindStringIndex(answer)
	if loc == nil {
		return strings.TrimSpace(answer), defaultFollowUps
	}

	body := strings.TrimSpace(answer[:loc[0]])
	section := answer[loc[1]:]

	questions := make([]string, 0, 3)
	for _, line := range strings.Split(section, "\n") {
		if m := followupItem.FindStringSubmatch(line); m != nil {
			q := strings.TrimSpace(m[1])
			q = strings.Trim(q, `"“”`)
			if q != "" {
				questions = append(questions, q)
			}
		} else if strings.TrimSpace(line) != "" && len(questions) > 0 {
			// Section ends at the first non-item line after items began.
			break
		}
		if len(questions) == 3 {
			break
		}
	}
	if len(questions) == 0 {
		return body, defaultFollowUps
	}
	return body, questions
}
