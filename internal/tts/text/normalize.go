// Package text provides the text side of the TTS pipeline: splitting input into
// model-sized chunks and normalising Vietnamese text so the model reads
// numbers, dates, units and abbreviations aloud.
package text

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Regex patterns for text normalisation.
const (
	urlRegexPattern          = `https?://\S+|www\.\S+`
	emailRegexPattern        = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	referenceRegexPattern    = `\[\d+\]`
	fullDateRegexPattern     = `(?:\b((?i:ngày))\s+)?\b(\d{1,2})/(\d{1,2})/(\d{4})\b`
	monthYearRegexPattern    = `(?:\b((?i:tháng))\s+)?\b(\d{1,2})/(\d{4})\b`
	dayMonthRegexPattern     = `(?:\b((?i:ngày))\s+)?\b(\d{1,2})/(\d{1,2})\b`
	clockRegexPattern        = `\b(\d{1,2})(?::|h)(\d{2})\b`
	numberRegexPattern       = `(\d+(?:[.,]\d+)*)(\s?(?:km|kg|cm|mm|ml|m²|m|°C|USD|VNĐ|đ|h|%))?`
	fieldRegexPattern        = `\S+`
	whitespaceRegexPattern   = `\s+`
	spaceBeforePunctPattern  = `\s+([,.;:!?])`
	thousandsGroupingPattern = `^\d{1,3}(?:\.\d{3})+$`
)

// Placeholder delimiters use private-use runes so no later step rewrites them.
const (
	placeholderOpen  = '\uE000'
	placeholderClose = '\uE001'
)

// Date and time bounds.
const (
	maxDay    = 31
	maxMonth  = 12
	maxHour   = 24
	maxMinute = 59
)

const (
	fieldLeadingTrim  = `([{"'“‘`
	fieldTrailingTrim = `.,;:!?)]}"'”’`
	closingMarks      = `)]}'`
)

// Date words written before a rewritten date.
const (
	dayWord   = "ngày"
	monthWord = "tháng"
)

// Normalizer rewrites Vietnamese text into a form the TTS model reads well.
// It is safe for concurrent use.
type Normalizer struct {
	urlPattern        *regexp.Regexp
	emailPattern      *regexp.Regexp
	referencePattern  *regexp.Regexp
	fullDatePattern   *regexp.Regexp
	monthYearPattern  *regexp.Regexp
	dayMonthPattern   *regexp.Regexp
	clockPattern      *regexp.Regexp
	numberPattern     *regexp.Regexp
	fieldPattern      *regexp.Regexp
	whitespacePattern *regexp.Regexp
	spaceBeforePunct  *regexp.Regexp
	thousandsGrouping *regexp.Regexp
	abbreviations     map[string]string
	units             map[string]string
	symbolReplacer    *strings.Replacer
	punctReplacer     *strings.Replacer
}

// NewNormalizer creates a normalizer with compiled patterns and lookup tables.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		urlPattern:        regexp.MustCompile(urlRegexPattern),
		emailPattern:      regexp.MustCompile(emailRegexPattern),
		referencePattern:  regexp.MustCompile(referenceRegexPattern),
		fullDatePattern:   regexp.MustCompile(fullDateRegexPattern),
		monthYearPattern:  regexp.MustCompile(monthYearRegexPattern),
		dayMonthPattern:   regexp.MustCompile(dayMonthRegexPattern),
		clockPattern:      regexp.MustCompile(clockRegexPattern),
		numberPattern:     regexp.MustCompile(numberRegexPattern),
		fieldPattern:      regexp.MustCompile(fieldRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		spaceBeforePunct:  regexp.MustCompile(spaceBeforePunctPattern),
		thousandsGrouping: regexp.MustCompile(thousandsGroupingPattern),
		abbreviations:     abbreviationTable(),
		units:             unitTable(),
		symbolReplacer: strings.NewReplacer(
			"&", " và ",
			"+", " cộng ",
			"=", " bằng ",
			"#", " thăng ",
		),
		punctReplacer: strings.NewReplacer(
			"—", ", ",
			"–", ", ",
			"‒", ", ",
			"…", ".",
			"“", "", "”", "", `"`, "",
			"‘", "'", "’", "'",
			"«", "", "»", "",
		),
	}
}

func abbreviationTable() map[string]string {
	return map[string]string{
		"TP.HCM": "thành phố Hồ Chí Minh",
		"Tp.HCM": "thành phố Hồ Chí Minh",
		"TPHCM":  "thành phố Hồ Chí Minh",
		"HCM":    "Hồ Chí Minh",
		"TP.":    "thành phố",
		"Tp.":    "thành phố",
		"VN":     "Việt Nam",
		"VNĐ":    "Việt Nam đồng",
		"UBND":   "ủy ban nhân dân",
		"HĐND":   "hội đồng nhân dân",
		"CLB":    "câu lạc bộ",
		"THPT":   "trung học phổ thông",
		"THCS":   "trung học cơ sở",
		"ĐH":     "đại học",
		"NXB":    "nhà xuất bản",
		"GS.TS":  "giáo sư tiến sĩ",
		"PGS.TS": "phó giáo sư tiến sĩ",
		"GS.":    "giáo sư",
		"PGS.":   "phó giáo sư",
		"TS.":    "tiến sĩ",
		"ThS.":   "thạc sĩ",
		"BS.":    "bác sĩ",
		"v.v.":   "vân vân",
		"v.v":    "vân vân",
		"ko":     "không",
		"Mr.":    "mít tơ",
		"Mrs.":   "mít sơ",
		"Dr.":    "đốc tơ",
		"St.":    "xanh",
		"km/h":   "ki lô mét trên giờ",
		"TTXVN":  "thông tấn xã Việt Nam",
		"LHQ":    "liên hợp quốc",
		"THTT":   "truyền hình trực tiếp",
		"SĐT":    "số điện thoại",
		"ĐT":     "điện thoại",
		"BTC":    "ban tổ chức",
		"CSGT":   "cảnh sát giao thông",
		"GDP":    "gờ đê pê",
		"COVID":  "cô vít",
		"Covid":  "cô vít",
	}
}

func unitTable() map[string]string {
	return map[string]string{
		"%":   "phần trăm",
		"km":  "ki lô mét",
		"kg":  "ki lô gam",
		"cm":  "xen ti mét",
		"mm":  "mi li mét",
		"ml":  "mi li lít",
		"m²":  "mét vuông",
		"m":   "mét",
		"°C":  "độ xê",
		"USD": "đô la Mỹ",
		"VNĐ": "đồng",
		"đ":   "đồng",
		"h":   "giờ",
	}
}

// Normalize returns the speakable form of text. Applying it twice yields the
// same result as applying it once.
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	text = norm.NFC.String(text)

	preserved, placeholders := n.preserveTokens(text)

	preserved = n.referencePattern.ReplaceAllString(preserved, "")
	preserved = n.expandAbbreviations(preserved)
	preserved = n.normalizeDates(preserved)
	preserved = n.normalizeClock(preserved)
	preserved = n.normalizeNumbers(preserved)
	preserved = n.symbolReplacer.Replace(preserved)
	preserved = n.punctReplacer.Replace(preserved)
	preserved = n.normalizeWhitespace(preserved)
	preserved = removeExcessivePunctuation(preserved)
	preserved = ensureProperSentenceEnding(preserved)

	return restoreTokens(preserved, placeholders)
}

// preserveTokens swaps URLs and e-mail addresses for placeholders that contain
// no digits or punctuation.
func (n *Normalizer) preserveTokens(text string) (string, map[string]string) {
	placeholders := make(map[string]string)
	counter := 0

	replace := func(pattern *regexp.Regexp, input string) string {
		return pattern.ReplaceAllStringFunc(input, func(match string) string {
			token := strings.TrimRight(match, fieldTrailingTrim)
			placeholder := string(placeholderOpen) + letterIndex(counter) + string(placeholderClose)
			placeholders[placeholder] = token
			counter++

			return placeholder + match[len(token):]
		})
	}

	text = replace(n.urlPattern, text)
	text = replace(n.emailPattern, text)

	return text, placeholders
}

func restoreTokens(text string, placeholders map[string]string) string {
	for placeholder, original := range placeholders {
		text = strings.ReplaceAll(text, placeholder, original)
	}

	return text
}

// letterIndex encodes a counter as lowercase letters: 0 -> a, 25 -> z, 26 -> ba.
func letterIndex(value int) string {
	const alphabet = 26

	if value == 0 {
		return "a"
	}

	var letters []byte
	for ; value > 0; value /= alphabet {
		letters = append([]byte{byte('a' + value%alphabet)}, letters...)
	}

	return string(letters)
}

// expandAbbreviations expands whole whitespace-separated fields, ignoring
// surrounding brackets, quotes and trailing punctuation.
func (n *Normalizer) expandAbbreviations(text string) string {
	return n.fieldPattern.ReplaceAllStringFunc(text, n.expandField)
}

func (n *Normalizer) expandField(field string) string {
	if expansion, found := n.abbreviations[field]; found {
		return expansion
	}

	core := strings.TrimLeft(field, fieldLeadingTrim)
	lead := field[:len(field)-len(core)]
	trail := ""

	for core != "" {
		if expansion, found := n.abbreviations[core]; found {
			return lead + expansion + trail
		}

		last, size := utf8.DecodeLastRuneInString(core)
		if !strings.ContainsRune(fieldTrailingTrim, last) {
			break
		}

		core = core[:len(core)-size]
		trail = string(last) + trail
	}

	return field
}

// normalizeDates reads d/m/yyyy, m/yyyy and d/m dates. A "ngày" or "tháng"
// already written before the date is kept and not repeated.
func (n *Normalizer) normalizeDates(text string) string {
	text = n.fullDatePattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := n.fullDatePattern.FindStringSubmatch(match)
		day, month := atoi(parts[2]), atoi(parts[3])

		if !validDay(day) || !validMonth(month) {
			return match
		}

		return fmt.Sprintf("%s %s tháng %s năm %s", prefixOr(parts[1], dayWord),
			IntegerToWords(int64(day)), IntegerToWords(int64(month)), IntegerToWords(int64(atoi(parts[4]))))
	})

	text = n.monthYearPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := n.monthYearPattern.FindStringSubmatch(match)

		month := atoi(parts[2])
		if !validMonth(month) {
			return match
		}

		return fmt.Sprintf("%s %s năm %s", prefixOr(parts[1], monthWord),
			IntegerToWords(int64(month)), IntegerToWords(int64(atoi(parts[3]))))
	})

	return n.dayMonthPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := n.dayMonthPattern.FindStringSubmatch(match)
		day, month := atoi(parts[2]), atoi(parts[3])

		if !validDay(day) || !validMonth(month) {
			return match
		}

		return fmt.Sprintf("%s %s tháng %s", prefixOr(parts[1], dayWord),
			IntegerToWords(int64(day)), IntegerToWords(int64(month)))
	})
}

func prefixOr(written, fallback string) string {
	if written != "" {
		return written
	}

	return fallback
}

func (n *Normalizer) normalizeClock(text string) string {
	return n.clockPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := n.clockPattern.FindStringSubmatch(match)
		hour, minute := atoi(parts[1]), atoi(parts[2])

		if hour > maxHour || minute > maxMinute {
			return match
		}

		if minute == 0 {
			return IntegerToWords(int64(hour)) + " giờ"
		}

		return fmt.Sprintf("%s giờ %s phút", IntegerToWords(int64(hour)), IntegerToWords(int64(minute)))
	})
}

// normalizeNumbers reads numbers and a directly following unit. A unit glued
// to further letters ("5min") is left alone.
func (n *Normalizer) normalizeNumbers(text string) string {
	matches := n.numberPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var builder strings.Builder

	last := 0

	for _, match := range matches {
		start, end := match[0], match[1]
		numberEnd := match[3]

		if start > 0 && text[start-1] == '-' && (start == 1 || isSpaceByte(text[start-2])) {
			builder.WriteString(text[last : start-1])
			builder.WriteString("âm ")
		} else {
			builder.WriteString(text[last:start])
		}

		builder.WriteString(n.readNumber(text[start:numberEnd]))

		if match[4] >= 0 && !followedByWordRune(text, end) {
			unit := strings.TrimSpace(text[match[4]:match[5]])
			builder.WriteString(" " + n.units[unit])
		} else {
			if followedByWordRune(text, numberEnd) {
				builder.WriteString(" ")
			}

			builder.WriteString(text[numberEnd:end])
		}

		last = end
	}

	builder.WriteString(text[last:])

	return builder.String()
}

// readNumber reads a digit run that may contain "." thousands grouping or a
// "," decimal separator.
func (n *Normalizer) readNumber(raw string) string {
	if strings.Count(raw, ",") > 1 {
		items := strings.Split(raw, ",")
		for index, item := range items {
			items[index] = n.readNumber(item)
		}

		return strings.Join(items, ", ")
	}

	if n.thousandsGrouping.MatchString(raw) {
		return readInteger(strings.ReplaceAll(raw, ".", ""))
	}

	// Dotted sequences that are not thousands grouping, such as section or
	// room numbers, are read part by part.
	if strings.Count(raw, ".") > 1 && !n.thousandsGrouping.MatchString(integerPart(raw)) {
		items := strings.Split(raw, ".")
		for index, item := range items {
			items[index] = n.readNumber(item)
		}

		return strings.Join(items, " chấm ")
	}

	separator := strings.LastIndexAny(raw, ".,")
	if separator < 0 {
		return readInteger(raw)
	}

	whole := strings.ReplaceAll(raw[:separator], ".", "")
	fraction := raw[separator+1:]

	return readInteger(whole) + " phẩy " + readInteger(fraction)
}

// integerPart returns raw up to its "," decimal separator.
func integerPart(raw string) string {
	if index := strings.LastIndex(raw, ","); index >= 0 {
		return raw[:index]
	}

	return raw
}

func readInteger(digits string) string {
	if digits == "" {
		return ""
	}

	if len(digits) > 1 && digits[0] == '0' {
		return DigitsToWords(digits)
	}

	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return DigitsToWords(digits)
	}

	return IntegerToWords(value)
}

func (n *Normalizer) normalizeWhitespace(text string) string {
	text = n.whitespacePattern.ReplaceAllString(text, " ")
	text = n.spaceBeforePunct.ReplaceAllString(text, "$1")

	return strings.TrimSpace(text)
}

// removeExcessivePunctuation keeps only the first of consecutive punctuation
// marks. Closing brackets and quotes are always kept and do not start a run.
func removeExcessivePunctuation(text string) string {
	var (
		result       []rune
		lastWasPunct bool
	)

	for _, char := range text {
		if strings.ContainsRune(closingMarks, char) {
			result = append(result, char)
			lastWasPunct = false

			continue
		}

		isPunct := unicode.IsPunct(char)
		if !isPunct || !lastWasPunct {
			result = append(result, char)
		}

		lastWasPunct = isPunct
	}

	return string(result)
}

// ensureProperSentenceEnding makes the text end with . ! or ?, replacing any
// other trailing punctuation mark except a closing bracket or quote.
func ensureProperSentenceEnding(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	lastChar, size := utf8.DecodeLastRuneInString(text)

	switch {
	case lastChar == '.' || lastChar == '!' || lastChar == '?':
		return text
	case strings.ContainsRune(closingMarks, lastChar):
		return text + "."
	case unicode.IsPunct(lastChar):
		return strings.TrimSpace(text[:len(text)-size]) + "."
	default:
		return text + "."
	}
}

func followedByWordRune(text string, index int) bool {
	if index >= len(text) {
		return false
	}

	next, _ := utf8.DecodeRuneInString(text[index:])

	return unicode.IsLetter(next) || unicode.IsDigit(next)
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func atoi(digits string) int {
	value, err := strconv.Atoi(digits)
	if err != nil {
		return -1
	}

	return value
}

func validDay(day int) bool {
	return day >= 1 && day <= maxDay
}

func validMonth(month int) bool {
	return month >= 1 && month <= maxMonth
}
