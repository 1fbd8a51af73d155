package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sentenceTerminators end a sentence; the terminator stays with its sentence.
const sentenceTerminators = ".!?;:…"

// sentenceClosers may trail a terminator and still belong to the same sentence.
const sentenceClosers = `"')]}”’»`

// SplitByPunctuation splits text into chunks of at most maxChunkLen runes.
//
// Sentences end at . ! ? ; : or …; consecutive sentences are merged with a
// single space while the merged chunk still fits. A sentence longer than the
// limit is cut into fixed-length pieces. Returned chunks are trimmed and
// non-empty.
func SplitByPunctuation(text string, maxChunkLen int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if maxChunkLen <= 0 {
		return []string{text}
	}

	var (
		chunks  []string
		current string
	)

	flush := func() {
		if current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
			current = ""
		}
	}

	for _, sentence := range SplitSentences(text) {
		sentenceLen := utf8.RuneCountInString(sentence)

		if sentenceLen > maxChunkLen {
			flush()

			chunks = append(chunks, hardCut(sentence, maxChunkLen)...)

			continue
		}

		switch {
		case current == "":
			current = sentence
		case utf8.RuneCountInString(current)+1+sentenceLen <= maxChunkLen:
			current = current + " " + sentence
		default:
			flush()

			current = sentence
		}
	}

	flush()

	return chunks
}

// SplitSentences returns the trimmed, non-empty sentences of text. Text after
// the last terminator forms a final sentence.
func SplitSentences(text string) []string {
	var (
		sentences []string
		builder   strings.Builder
	)

	runes := []rune(text)

	emit := func() {
		sentence := strings.TrimSpace(builder.String())
		if sentence != "" {
			sentences = append(sentences, sentence)
		}

		builder.Reset()
	}

	for index := 0; index < len(runes); index++ {
		char := runes[index]
		builder.WriteRune(char)

		if !strings.ContainsRune(sentenceTerminators, char) {
			continue
		}

		// absorb "?!", "..." and closing quotes into the same sentence
		for index+1 < len(runes) && isSentenceTail(runes[index+1]) {
			index++
			builder.WriteRune(runes[index])
		}

		emit()
	}

	emit()

	return sentences
}

func isSentenceTail(char rune) bool {
	return strings.ContainsRune(sentenceTerminators, char) ||
		strings.ContainsRune(sentenceClosers, char)
}

func hardCut(sentence string, maxChunkLen int) []string {
	runes := []rune(sentence)
	pieces := make([]string, 0, len(runes)/maxChunkLen+1)

	for start := 0; start < len(runes); start += maxChunkLen {
		end := min(start+maxChunkLen, len(runes))

		piece := strings.TrimFunc(string(runes[start:end]), unicode.IsSpace)
		if piece != "" {
			pieces = append(pieces, piece)
		}
	}

	return pieces
}
