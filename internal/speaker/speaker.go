// Package speaker holds the catalog of voices the Kani TTS Vie checkpoint was
// fine-tuned on.
package speaker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSpeaker is returned when a name matches no catalog entry.
var ErrUnknownSpeaker = errors.New("unknown speaker")

// Speaker describes one selectable voice. An empty ID means the model picks
// the voice on its own.
type Speaker struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Language    string `json:"language"`
}

// Unspecified reports whether the speaker leaves voice selection to the model.
func (s Speaker) Unspecified() bool {
	return s.ID == ""
}

// DefaultID is the speaker used when a request names none.
const DefaultID = "nam-mien-nam"

// UnspecifiedLabel is the display label of the "no speaker" entry.
const UnspecifiedLabel = "Không chỉ định"

var catalog = []Speaker{
	{ID: "nam-mien-bac", Label: "Khoa – Nam miền Bắc", Description: "Northern Vietnamese male", Language: "vi"},
	{ID: "nam-mien-nam", Label: "Hùng – Nam miền Nam", Description: "Southern Vietnamese male", Language: "vi"},
	{ID: "nu-mien-nam", Label: "Trinh – Nữ miền Nam", Description: "Southern Vietnamese female", Language: "vi"},
	{ID: "david", Label: "David – English (British)", Description: "British English male", Language: "en"},
	{ID: "katie", Label: "Katie – English (Irish)", Description: "Irish English female", Language: "en"},
	{ID: "", Label: UnspecifiedLabel, Description: "Model default voice", Language: ""},
}

// All returns the catalog in display order.
func All() []Speaker {
	out := make([]Speaker, len(catalog))
	copy(out, catalog)

	return out
}

// Default returns the default speaker.
func Default() Speaker {
	speaker, _ := Resolve(DefaultID)

	return speaker
}

// Resolve finds a speaker by ID (case-insensitive) or by exact display label.
// An empty name resolves to the unspecified speaker.
func Resolve(name string) (Speaker, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return catalog[len(catalog)-1], nil
	}

	for _, speaker := range catalog {
		if speaker.Label == trimmed {
			return speaker, nil
		}

		if speaker.ID != "" && strings.EqualFold(speaker.ID, trimmed) {
			return speaker, nil
		}
	}

	return Speaker{}, fmt.Errorf("%w: %q", ErrUnknownSpeaker, trimmed)
}
