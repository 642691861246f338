package ttsbridge

import (
	"regexp"
	"strings"

	"github.com/kaiwa-ai/uketsuke/internal/nlu"
)

// ssmlBreak is inserted at sentence boundaries so the synthesized voice
// pauses between sentences.
const ssmlBreak = "<break time='500ms'/>"

var slotDateRe = regexp.MustCompile(`\d{1,2}/\d{1,2}`)

// AdjustForSpeech rewrites canonical slot values inside a response into
// spoken Japanese and marks sentence pauses: "11/02" becomes 11月2日,
// "19:30" becomes 19時30分 and each 。 gains an SSML break.
func AdjustForSpeech(text string) string {
	text = slotDateRe.ReplaceAllStringFunc(text, func(m string) string {
		if spoken := nlu.SpeakableDate(m); spoken != "" {
			return spoken
		}
		return m
	})
	text = nlu.SpeakableTime(text)
	return strings.ReplaceAll(text, "。", "。"+ssmlBreak)
}
