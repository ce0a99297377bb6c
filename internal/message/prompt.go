package message

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"calbrief/internal/calendar"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// greetingPrompt is sent by TestAPIKey.
const greetingPrompt = "You are a tsundere girl. I am checking that this API key works. " +
	"Greet me with that in mind, in one short sentence."

type promptData struct {
	Date    time.Time
	Zone    string
	Variant Variant
	Events  []calendar.Event
}

// Prompts renders persona templates.
type Prompts struct {
	tmpl *template.Template
	loc  *time.Location
}

// NewPrompts parses the embedded persona templates. Days are rendered in loc.
func NewPrompts(loc *time.Location) (*Prompts, error) {
	if loc == nil {
		loc = time.Local
	}
	funcs := sprig.TxtFuncMap()
	funcs["eventLine"] = func(ev calendar.Event) string { return FormatEventLine(ev, loc) }

	tmpl, err := template.New("prompts").Funcs(funcs).ParseFS(promptFS, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates: %w", err)
	}
	return &Prompts{tmpl: tmpl, loc: loc}, nil
}

// Personas lists the available persona names.
func (p *Prompts) Personas() []string {
	var names []string
	for _, t := range p.tmpl.Templates() {
		if name, ok := strings.CutSuffix(t.Name(), ".tmpl"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Render builds the prompt for persona.
func (p *Prompts) Render(persona string, events []calendar.Event, date time.Time, variant Variant) (string, error) {
	name := path.Base(persona) + ".tmpl"
	if p.tmpl.Lookup(name) == nil {
		return "", fmt.Errorf("unknown persona %q (available: %s)", persona, strings.Join(p.Personas(), ", "))
	}

	var b strings.Builder
	err := p.tmpl.ExecuteTemplate(&b, name, promptData{
		Date:    date,
		Zone:    p.loc.String(),
		Variant: variant,
		Events:  events,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", persona, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// FormatEventLine renders one event as "- 10:00–11:30 Title (at Place)".
func FormatEventLine(ev calendar.Event, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("- ")
	if ev.AllDay {
		b.WriteString("all day")
	} else {
		b.WriteString(ev.Start.In(loc).Format("15:04"))
		b.WriteString("–")
		b.WriteString(ev.End.In(loc).Format("15:04"))
	}
	b.WriteString(" ")
	b.WriteString(ev.Title)
	if ev.Location != "" {
		b.WriteString(" (at ")
		b.WriteString(ev.Location)
		b.WriteString(")")
	}
	return b.String()
}
