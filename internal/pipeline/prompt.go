package pipeline

import "strings"

const promptHeader = `Using the information below, answer any question the user might have about this topic. If the answer cannot be found, write
"I'm sorry, but I couldn't find the answer."
`

// BuildPrompt renders the prompt handed to an answer generator: fixed
// instructions, one "Information:" line per retrieved chunk, then the question.
func BuildPrompt(chunks []string, question string) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for _, c := range chunks {
		b.WriteString("\nInformation: ")
		b.WriteString(c)
	}
	b.WriteString("\nUser question: ")
	b.WriteString(question)
	b.WriteString("\nAnswer clearly and concisely.")
	return b.String()
}
