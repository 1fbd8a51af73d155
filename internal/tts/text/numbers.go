package text

import (
	"strconv"
	"strings"
)

const (
	// MaxNumberForWords is the largest integer read as words; longer numbers are
	// read digit by digit.
	MaxNumberForWords = 999_999_999_999

	numberBaseTen      = 10
	numberBaseHundred  = 100
	numberBaseThousand = 1000
)

var digitWords = [...]string{"không", "một", "hai", "ba", "bốn", "năm", "sáu", "bảy", "tám", "chín"}

// scale words for groups of three digits, least significant first
var scaleWords = [...]string{"", "nghìn", "triệu", "tỷ"}

// IntegerToWords reads a non-negative integer in Vietnamese.
func IntegerToWords(number int64) string {
	if number < 0 {
		return "âm " + IntegerToWords(-number)
	}

	if number == 0 {
		return digitWords[0]
	}

	if number > MaxNumberForWords {
		return DigitsToWords(strconv.FormatInt(number, numberBaseTen))
	}

	var groups []int

	for remaining := number; remaining > 0; remaining /= numberBaseThousand {
		groups = append(groups, int(remaining%numberBaseThousand))
	}

	var parts []string

	for index := len(groups) - 1; index >= 0; index-- {
		group := groups[index]
		if group == 0 {
			continue
		}

		leading := index == len(groups)-1
		parts = append(parts, readGroup(group, !leading))

		if scaleWords[index] != "" {
			parts = append(parts, scaleWords[index])
		}
	}

	return strings.Join(parts, " ")
}

// readGroup reads a value below one thousand. When full is set the hundreds
// place is always spoken, as required for groups after the leading one.
func readGroup(group int, full bool) string {
	hundreds := group / numberBaseHundred
	tens := (group % numberBaseHundred) / numberBaseTen
	units := group % numberBaseTen

	var words []string

	if hundreds > 0 || full {
		words = append(words, digitWords[hundreds], "trăm")
	}

	switch {
	case tens == 0 && units == 0:
		return strings.Join(words, " ")
	case tens == 0:
		if len(words) > 0 {
			words = append(words, "linh")
		}

		words = append(words, digitWords[units])

		return strings.Join(words, " ")
	case tens == 1:
		words = append(words, "mười")
	default:
		words = append(words, digitWords[tens], "mươi")
	}

	switch {
	case units == 0:
	case units == 1 && tens >= 2:
		words = append(words, "mốt")
	case units == 5:
		words = append(words, "lăm")
	default:
		words = append(words, digitWords[units])
	}

	return strings.Join(words, " ")
}

// DigitsToWords reads every digit of s separately; other runes are skipped.
func DigitsToWords(s string) string {
	words := make([]string, 0, len(s))

	for _, char := range s {
		if char >= '0' && char <= '9' {
			words = append(words, digitWords[char-'0'])
		}
	}

	return strings.Join(words, " ")
}
