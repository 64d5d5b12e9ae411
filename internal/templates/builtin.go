package templates

// Variables shared by the built-in templates.
var builtInVariables = map[string]string{
	"target_language": "Target language for translation",
	"text":            "Text to translate",
	"context":         "(Optional) Additional context about the content",
	"terminology":     "(Optional) Specific terminology to use",
	"style":           "(Optional) Additional style requirements",
}

type builtIn struct {
	id, name, description, text string
}

var builtIns = []builtIn{
	{
		id:          "professional",
		name:        "Professional",
		description: "Professional translation with formal tone and precise terminology",
		text: `Translate the following text to {{.target_language}} using a professional tone.

{{if .context}}Context: {{.context}}
{{end}}{{if .terminology}}Terminology to use: {{.terminology}}
{{end}}{{if .style}}Style requirements: {{.style}}
{{end}}
Text to translate:
{{.text}}

Provide a professional, accurate translation maintaining the formal tone.`,
	},
	{
		id:          "casual",
		name:        "Casual",
		description: "Casual translation with conversational tone",
		text: `Translate the following text to {{.target_language}} using a casual, conversational tone.

{{if .context}}Context: {{.context}}
{{end}}{{if .terminology}}Key terms: {{.terminology}}
{{end}}{{if .style}}Style notes: {{.style}}
{{end}}
Text to translate:
{{.text}}

Make the translation sound natural and conversational.`,
	},
	{
		id:          "academic",
		name:        "Academic",
		description: "Academic translation with scholarly tone and precise terminology",
		text: `Translate the following text to {{.target_language}} using an academic tone suitable for scholarly work.

{{if .context}}Academic context: {{.context}}
{{end}}{{if .terminology}}Technical terminology: {{.terminology}}
{{end}}{{if .style}}Style requirements: {{.style}}
{{end}}
Text to translate:
{{.text}}

Provide an accurate, scholarly translation with appropriate academic terminology and formal register.`,
	},
	{
		id:          "business",
		name:        "Business",
		description: "Business translation with professional corporate tone",
		text: `Translate the following text to {{.target_language}} using a business-appropriate tone.

{{if .context}}Business context: {{.context}}
{{end}}{{if .terminology}}Business terminology: {{.terminology}}
{{end}}{{if .style}}Corporate style requirements: {{.style}}
{{end}}
Text to translate:
{{.text}}

Provide a business-appropriate translation suitable for corporate communications.`,
	},
}
