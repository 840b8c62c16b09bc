package regbot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"AcadFinAudit/internal/regstore"
)

func TestDecodeTextEUCKR(t *testing.T) {
	encoded, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte("지출 규정 제1조"))
	require.NoError(t, err)
	assert.Equal(t, "지출 규정 제1조", decodeText(encoded))
}

func TestDecodeTextUTF8Passthrough(t *testing.T) {
	assert.Equal(t, "already utf-8", decodeText([]byte("already utf-8")))
}

func TestBuildMessagesIncludesHistoryAndContext(t *testing.T) {
	s := &RegbotService{histories: map[string][]exchange{
		"sess-1": {{Question: "이전 질문", Answer: "이전 답변"}},
	}}
	results := []regstore.SearchResult{
		{Chunk: regstore.Chunk{FileName: "재무규정.txt", Seq: 4, Content: "제12조 증빙서류"}},
		{Chunk: regstore.Chunk{FileName: "재무규정.txt", Seq: 9, Content: "제20조 출장비"}},
	}

	messages := s.buildMessages("sess-1", "출장비 정산 기한은?", results)
	require.Len(t, messages, 4) // system, prior user, prior assistant, current user

	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "이전 질문", messages[1].Content)
	assert.Equal(t, "assistant", messages[2].Role)

	last := messages[3].Content
	assert.True(t, strings.Contains(last, "제12조 증빙서류"))
	assert.True(t, strings.Contains(last, "[재무규정.txt #9]"))
	assert.True(t, strings.Contains(last, "출장비 정산 기한은?"))
}

func TestHistoryIsCopied(t *testing.T) {
	s := &RegbotService{histories: map[string][]exchange{}}
	s.appendHistory("a", exchange{Question: "q1", Answer: "a1"})

	h := s.history("a")
	h[0].Answer = "mutated"
	assert.Equal(t, "a1", s.history("a")[0].Answer)
}
