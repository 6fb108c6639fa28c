package llm

import (
	"fmt"
	"unicode"
)

const editorSystemPrompt = "You are a news desk editor for a Telugu news service. You answer with strict JSON only."

// ContainsTelugu reports whether s has any character from the Telugu block.
func ContainsTelugu(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Telugu, r) {
			return true
		}
	}
	return false
}

// EnrichPrompt builds the prompt that turns raw post text into a news title
// and summary. Telugu input is summarized in Telugu; other input is
// translated first.
func EnrichPrompt(text string) string {
	task := "Translate the following English news text into Telugu and write a short Telugu news title and summary."
	if ContainsTelugu(text) {
		task = "Summarize the following Telugu news text into a concise news-style title and summary in Telugu, using the plain words a daily newspaper would use."
	}
	return fmt.Sprintf(`%s
Return strictly a JSON object with keys "title" and "summary". Do not add anything else.

TEXT:
%s`, task, text)
}
