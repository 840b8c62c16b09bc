package regbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFollowUpsNumberedSection(t *testing.T) {
	answer := `출장비는 출장 종료 후 15일 이내에 정산해야 합니다.

#### 추천 질문
1. 해외 출장의 일비 기준은 어떻게 되나요?
2. 출장 중 법인카드 사용이 가능한가요?
3. 정산 기한을 넘기면 어떻게 되나요?`

	body, questions := ExtractFollowUps(answer)
	assert.Equal(t, "출장비는 출장 종료 후 15일 이내에 정산해야 합니다.", body)
	require.Len(t, questions, 3)
	assert.Equal(t, "해외 출장의 일비 기준은 어떻게 되나요?", questions[0])
}

func TestExtractFollowUpsAlternateHeadersAndBullets(t *testing.T) {
	answer := "답변 본문입니다.\n\n**관련 질문**\n- 증빙 없이 지출할 수 있는 한도는?\n- 간이영수증은 인정되나요?"

	body, questions := ExtractFollowUps(answer)
	assert.Equal(t, "답변 본문입니다.", body)
	require.Len(t, questions, 2)
	assert.Equal(t, "간이영수증은 인정되나요?", questions[1])
}

func TestExtractFollowUpsMissingSectionUsesDefaults(t *testing.T) {
	body, questions := ExtractFollowUps("규정에서 확인할 수 없습니다.")
	assert.Equal(t, "규정에서 확인할 수 없습니다.", body)
	assert.Equal(t, defaultFollowUps, questions)
}

func TestExtractFollowUpsEmptySectionUsesDefaults(t *testing.T) {
	body, questions := ExtractFollowUps("본문만 있습니다.\n\n#### 추천 질문\n")
	assert.Equal(t, "본문만 있습니다.", body)
	assert.Equal(t, defaultFollowUps, questions)
}

func TestExtractFollowUpsCapsAtThree(t *testing.T) {
	answer := "본문\n\n#### 추천 질문\n1. 하나\n2. 둘\n3. 셋\n4. 넷\n"
	_, questions := ExtractFollowUps(answer)
	assert.Len(t, questions, 3)
	assert.Equal(t, []string{"하나", "둘", "셋"}, questions)
}

func TestExtractFollowUpsStripsQuotes(t *testing.T) {
	answer := "본문\n\n#### 추천 질문\n1. \"인용된 질문인가요?\"\n"
	_, questions := ExtractFollowUps(answer)
	require.NotEmpty(t, questions)
	assert.Equal(t, "인용된 질문인가요?", questions[0])
}
