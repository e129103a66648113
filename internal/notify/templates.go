package notify

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is one entry of the copy deck. Subject is empty for
// chat-channel templates.
type Template struct {
	Subject string `yaml:"subject,omitempty"`
	Body    string `yaml:"body"`
}

type deck struct {
	subjects map[string]*template.Template
	bodies   map[string]*template.Template
}

var templates = mustParseDeck(templatesYAML)

func mustParseDeck(raw []byte) *deck {
	var entries map[string]Template
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		panic(fmt.Sprintf("notify: bad template deck: %v", err))
	}
	d := &deck{
		subjects: make(map[string]*template.Template, len(entries)),
		bodies:   make(map[string]*template.Template, len(entries)),
	}
	for name, t := range entries {
		if t.Subject != "" {
			d.subjects[name] = template.Must(template.New(name + ".subject").Parse(t.Subject))
		}
		d.bodies[name] = template.Must(template.New(name + ".body").Parse(t.Body))
	}
	return d
}

// Render fills the named template from the embedded deck. Subject comes
// back empty when the template has none.
func Render(name string, data map[string]any) (subject, body string, err error) {
	bt, ok := templates.bodies[name]
	if !ok {
		return "", "", fmt.Errorf("notify: no template %q", name)
	}
	var b strings.Builder
	if err := bt.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("notify: render %s: %w", name, err)
	}
	body = b.String()
	if st, ok := templates.subjects[name]; ok {
		var s strings.Builder
		if err := st.Execute(&s, data); err != nil {
			return "", "", fmt.Errorf("notify: render %s subject: %w", name, err)
		}
		subject = s.String()
	}
	return subject, body, nil
}
