package text_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/book-expert/kani-tts-service/internal/tts/text"
	"github.com/stretchr/testify/assert"
)

func TestSplitByPunctuation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected []string
	}{
		{
			name:     "short sentences are merged",
			input:    "Xin chào. Bạn khỏe không?",
			maxLen:   250,
			expected: []string{"Xin chào. Bạn khỏe không?"},
		},
		{
			name:     "long sentence is hard cut",
			input:    "Xin chào. Bạn khỏe không?",
			maxLen:   10,
			expected: []string{"Xin chào.", "Bạn khỏe k", "hông?"},
		},
		{
			name:     "trailing text without punctuation is kept",
			input:    "Một. Hai ba bốn",
			maxLen:   250,
			expected: []string{"Một. Hai ba bốn"},
		},
		{
			name:     "merge stops at the limit",
			input:    "Aa. Bb. Cc.",
			maxLen:   7,
			expected: []string{"Aa. Bb.", "Cc."},
		},
		{
			name:     "ellipsis and repeated marks stay with their sentence",
			input:    "Chờ đã... Được rồi!",
			maxLen:   10,
			expected: []string{"Chờ đã...", "Được rồi!"},
		},
		{
			name:     "whitespace only",
			input:    "   \n\t ",
			maxLen:   250,
			expected: nil,
		},
		{
			name:     "hard cut pieces are trimmed",
			input:    "Một. Hai ba bốn",
			maxLen:   5,
			expected: []string{"Một.", "Hai b", "a bốn"},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, text.SplitByPunctuation(testCase.input, testCase.maxLen))
		})
	}
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	got := text.SplitSentences(`Anh hỏi: "Đi đâu?" Tôi đáp; về nhà… Xong`)
	assert.Equal(t, []string{"Anh hỏi:", `"Đi đâu?"`, "Tôi đáp;", "về nhà…", "Xong"}, got)
}

func TestSplitByPunctuation_PreservesContent(t *testing.T) {
	t.Parallel()

	input := strings.Repeat("Khi bạn kề vai sát cánh cùng đồng đội của mình, bạn có thể làm nên những điều phi thường. ", 12) +
		strings.Repeat("từ ", 120)

	for _, maxLen := range []int{20, 64, 250} {
		chunks := text.SplitByPunctuation(input, maxLen)

		for _, chunk := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(chunk), maxLen)
			assert.Equal(t, strings.TrimSpace(chunk), chunk)
			assert.NotEmpty(t, chunk)
		}

		assert.Equal(t, stripSpaces(input), stripSpaces(strings.Join(chunks, "")))
	}
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
