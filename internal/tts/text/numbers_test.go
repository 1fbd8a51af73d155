package text_test

import (
	"strings"
	"testing"

	"github.com/book-expert/kani-tts-service/internal/tts/text"
	"github.com/stretchr/testify/assert"
)

func TestIntegerToWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    int64
		expected string
	}{
		{0, "không"},
		{5, "năm"},
		{10, "mười"},
		{11, "mười một"},
		{15, "mười lăm"},
		{21, "hai mươi mốt"},
		{24, "hai mươi bốn"},
		{105, "một trăm linh năm"},
		{110, "một trăm mười"},
		{1000, "một nghìn"},
		{1005, "một nghìn không trăm linh năm"},
		{2024, "hai nghìn không trăm hai mươi bốn"},
		{1_000_000, "một triệu"},
		{1_050_000, "một triệu không trăm năm mươi nghìn"},
		{2_000_000_001, "hai tỷ không trăm linh một"},
		{-7, "âm bảy"},
	}

	for _, testCase := range tests {
		assert.Equal(t, testCase.expected, text.IntegerToWords(testCase.input), "input %d", testCase.input)
	}
}

func TestIntegerToWords_BeyondLimitReadsDigits(t *testing.T) {
	t.Parallel()

	got := text.IntegerToWords(text.MaxNumberForWords + 1)
	assert.Equal(t, "một"+strings.Repeat(" không", 12), got)
}

func TestDigitsToWords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "không chín không", text.DigitsToWords("090"))
	assert.Equal(t, "một hai", text.DigitsToWords("1-2"))
	assert.Empty(t, text.DigitsToWords("abc"))
}
