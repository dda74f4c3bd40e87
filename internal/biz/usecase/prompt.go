package usecase

import (
	"fmt"
	"strings"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
)

// ShortResponseThreshold is the token budget under which the reply length instruction is added
const ShortResponseThreshold = 300

// PromptSet contains every fixed instruction used for generation.
// Templates take their arguments through {{placeholders}}.
type PromptSet struct {
	Personas map[domain.Persona]string

	ShortResponse string // {{max_tokens}}
	Reminder      string
	Learning      string // {{subject}}
	Commentary    string // {{source}}, {{document}}
	Translate     string // {{language}}
	Reaction      string
}

// DefaultPromptSet returns the built-in instructions
func DefaultPromptSet() PromptSet {
	return PromptSet{
		Personas: map[domain.Persona]string{
			domain.PersonaJeeves: `You are Jeeves, a gentleman's personal gentleman in the manner of P. G. Wodehouse.
You are unfailingly courteous, dryly witty and quietly brilliant. You address the members of the chat as
"sir" or "madam" and keep your replies composed. You are part of a group conversation; several people may
speak in one burst and you answer them together.`,
			domain.PersonaTokiPona: `sina jan pona li toki e toki pona taso. o toki lili. o toki pona tawa jan ale.
You reply only in Toki Pona, using its official vocabulary, and keep every sentence short.`,
			domain.PersonaJargon: `You are a hacker from the era of the Jargon File. You speak in the slang of MIT and Stanford
AI labs circa 1983, you are terse and playful, and you treat every question as an interesting hack.`,
		},
		ShortResponse: "Your reply must fit within {{max_tokens}} tokens. Keep it short and end it cleanly; never stop mid-sentence.",
		Reminder:      "This is a reminder the user asked you to deliver. Announce it briefly, staying in character, without repeating the reminder text verbatim.",
		Learning:      "Ask the chat one short question to practise {{subject}}. Ask only the question, do not give the answer.",
		Commentary:    "[system note] Nobody has spoken for a while. Share a brief, in-character remark about the following text from {{source}}:\n\n{{document}}",
		Translate:     "Translate the user's message into {{language}}. Reply with the translation only.",
		Reaction:      "Pick exactly one emoji that reacts to the user's message. Reply with the emoji only.",
	}
}

// Merge fills the empty fields of p from base
func (p PromptSet) Merge(base PromptSet) PromptSet {
	out := base
	out.Personas = make(map[domain.Persona]string, len(base.Personas))
	for k, v := range base.Personas {
		out.Personas[k] = v
	}
	for k, v := range p.Personas {
		if v != "" {
			out.Personas[k] = v
		}
	}
	if p.ShortResponse != "" {
		out.ShortResponse = p.ShortResponse
	}
	if p.Reminder != "" {
		out.Reminder = p.Reminder
	}
	if p.Learning != "" {
		out.Learning = p.Learning
	}
	if p.Commentary != "" {
		out.Commentary = p.Commentary
	}
	if p.Translate != "" {
		out.Translate = p.Translate
	}
	if p.Reaction != "" {
		out.Reaction = p.Reaction
	}
	return out
}

// SystemPrompt returns the instruction for a persona.
// ok is false in transcription-only mode, where generation is skipped.
func (p PromptSet) SystemPrompt(mode domain.Persona, customPrompt string) (prompt string, ok bool) {
	switch mode {
	case domain.PersonaWhisper:
		return "", false
	case domain.PersonaCustom:
		return customPrompt, true
	}
	if s, found := p.Personas[mode]; found {
		return s, true
	}
	return p.Personas[domain.PersonaJeeves], true
}

// WithTokenBudget adds the short reply instruction when the budget is below the threshold
func (p PromptSet) WithTokenBudget(system string, maxTokens int) string {
	if maxTokens >= ShortResponseThreshold {
		return system
	}
	rule := render(p.ShortResponse, "max_tokens", fmt.Sprintf("%d", maxTokens))
	if system == "" {
		return rule
	}
	return system + "\n\n" + rule
}

// LearningPrompt renders the question prompt for a subject
func (p PromptSet) LearningPrompt(subject string) string {
	return render(p.Learning, "subject", subject)
}

// CommentaryPrompt renders the note that carries a fetched document
func (p PromptSet) CommentaryPrompt(source, document string) string {
	return render(p.Commentary, "source", source, "document", document)
}

// TranslatePrompt renders the translation instruction
func (p PromptSet) TranslatePrompt(language string) string {
	return render(p.Translate, "language", language)
}

func render(tmpl string, kv ...string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		tmpl = strings.ReplaceAll(tmpl, "{{"+kv[i]+"}}", kv[i+1])
	}
	return tmpl
}
