package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/geocoder89/certhub/internal/domain/notification"
)

//go:embed templates/*.html
var templateFS embed.FS

type templateData struct {
	Subject string
	Name    string
	Data    map[string]string
	Year    int
}

// Renderer holds one parsed template set per kind. Each set is the shared
// layout plus the kind's "body" block.
type Renderer struct {
	sets map[notification.Kind]*template.Template
}

func NewRenderer() (*Renderer, error) {
	layout, err := template.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	sets := make(map[notification.Kind]*template.Template)
	for _, k := range notification.Kinds() {
		base, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		t, err := base.ParseFS(templateFS, "templates/"+string(k)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", k, err)
		}
		sets[k] = t
	}

	return &Renderer{sets: sets}, nil
}

// Render produces the email for kind addressed to to.
func (r *Renderer) Render(kind notification.Kind, to, name string, data map[string]string) (Message, error) {
	t, ok := r.sets[kind]
	if !ok {
		return Message{}, notification.ErrUnknownKind
	}

	if data == nil {
		data = map[string]string{}
	}

	td := templateData{
		Subject: kind.Subject(),
		Name:    name,
		Data:    data,
		Year:    time.Now().Year(),
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", td); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}

	return Message{
		Kind:    string(kind),
		To:      to,
		Subject: td.Subject,
		HTML:    buf.String(),
	}, nil
}
