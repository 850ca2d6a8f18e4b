package translate

import (
	"fmt"
	"strings"
)

var languageNames = map[string]string{
	"en": "English",
	"ja": "Japanese",
	"de": "German",
	"es": "Spanish",
	"fr": "French",
	"ko": "Korean",
	"zh": "Chinese",
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// buildPrompt produces the per-segment translation instruction. The
// character budget is strict: the translated line has to be speakable
// inside the segment's time window.
func buildPrompt(req Request, keepTerms []string) string {
	src := languageName(req.SourceLang)
	dst := languageName(req.TargetLang)

	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional translator converting %s speech into %s subtitles for text-to-speech narration.\n", src, dst)
	fmt.Fprintf(&b, "Translate the %s text into polite, clear and natural %s suitable for narration.\n", src, dst)
	if req.TargetLang == "ja" {
		b.WriteString("Use the polite です・ます form and proper particles so the sentence flows naturally for native speakers.\n")
	}
	fmt.Fprintf(&b, "Your translation must fit within %d characters. This is a strict limit; do not exceed it.\n", req.MaxChars)
	b.WriteString("Do not cut the translation off unnaturally: if it runs long, rephrase it to be shorter while keeping the meaning. The result must be a grammatically complete sentence.\n")
	b.WriteString("Omit filler words such as \"um\", \"uh\", \"you know\". If the input consists only of such words, return an empty string with no explanation or placeholder.\n")
	b.WriteString("You may lightly restructure the sentence or drop minor details to keep the output natural and within the limit.\n")
	if len(keepTerms) != 0 {
		fmt.Fprintf(&b, "Keep the following proper nouns untranslated, exactly as written: %s.\n", strings.Join(keepTerms, ", "))
	}
	fmt.Fprintf(&b, "Return only the final translated text, with no line breaks, formatting or commentary.\n\n%s text:\n%s", src, req.Text)

	return b.String()
}
