package luminote

import (
	"strings"
	"text/template"
)

// Prompt variables every template receives.
const (
	PromptVarText           = "text"
	PromptVarTargetLanguage = "target_language"
)

// DefaultPromptTemplate is the instruction used when a request names no template.
const DefaultPromptTemplate = "Translate the following text to {{.target_language}}. " +
	"Return ONLY the translated text without any explanation or additional text.\n\n{{.text}}"

var defaultPrompt = template.Must(ParsePrompt("default", DefaultPromptTemplate))

// ParsePrompt parses a prompt template. Variables are referenced as
// {{.name}}; referencing a variable that is not supplied at render time is
// an execution error.
func ParsePrompt(name, text string) (*template.Template, error) {
	return template.New(name).Option("missingkey=error").Parse(text)
}

// RenderPrompt executes t with vars.
func RenderPrompt(t *template.Template, vars map[string]string) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, vars); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// BuildTranslationPrompt returns the default instruction sent to LLM providers.
func BuildTranslationPrompt(text, targetLanguage string) string {
	// Both variables are supplied, so execution cannot fail.
	out, _ := RenderPrompt(defaultPrompt, map[string]string{
		PromptVarText:           text,
		PromptVarTargetLanguage: targetLanguage,
	})
	return out
}
