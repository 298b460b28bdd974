// Package pages renders the bilingual HTML pages of the unsubscribe flow.
package pages

import (
	"embed"
	"html"
	"html/template"
	"net/http"

	"github.com/mbolis/signup/log"
)

//go:embed templates/page.html
var templates embed.FS

var page = template.Must(template.ParseFS(templates, "templates/page.html"))

type Line struct {
	Text  string
	Email string
	Rest  string
}

type Section struct {
	Heading string
	Lines   []Line
}

type Page struct {
	Title        string
	Icon         string
	IconLabel    string
	IsError      bool
	Sections     []Section
	ContactEN    string
	ContactES    string
	ContactEmail string
}

// Unsubscribed confirms a successful opt-out.
func Unsubscribed(siteName, email, contact string) Page {
	email = html.UnescapeString(email)
	return Page{
		Title:     "Unsubscribed / Dado de baja",
		Icon:      "✓",
		IconLabel: "Success checkmark",
		Sections: []Section{
			{
				Heading: "You Have Been Unsubscribed",
				Lines: []Line{
					{Text: "The email address", Email: email, Rest: "has been successfully removed from our mailing list."},
					{Text: "You will no longer receive emails from " + siteName + "."},
				},
			},
			{
				Heading: "Te Has Dado de Baja",
				Lines: []Line{
					{Text: "La dirección de correo", Email: email, Rest: "ha sido eliminada exitosamente de nuestra lista de correo."},
					{Text: "Ya no recibirás correos de " + siteName + "."},
				},
			},
		},
		ContactEN:    "Want to rejoin or have questions?",
		ContactES:    "¿Quieres volver a unirte o tienes preguntas?",
		ContactEmail: contact,
	}
}

// AlreadyUnsubscribed reports a token whose owner had opted out before.
func AlreadyUnsubscribed(siteName, email, contact string) Page {
	email = html.UnescapeString(email)
	return Page{
		Title:     "Already Unsubscribed / Ya dado de baja",
		Icon:      "ℹ️",
		IconLabel: "Information",
		Sections: []Section{
			{
				Heading: "Already Unsubscribed",
				Lines: []Line{
					{Text: "The email address", Email: email, Rest: "was already unsubscribed from our mailing list."},
					{Text: "You are not receiving emails from " + siteName + "."},
				},
			},
			{
				Heading: "Ya Dado de Baja",
				Lines: []Line{
					{Text: "La dirección de correo", Email: email, Rest: "ya estaba dada de baja de nuestra lista de correo."},
					{Text: "No estás recibiendo correos de " + siteName + "."},
				},
			},
		},
		ContactEN:    "Want to rejoin?",
		ContactES:    "¿Quieres volver a unirte?",
		ContactEmail: contact,
	}
}

// Error shows a bilingual failure message.
func Error(en, es, contact string) Page {
	return Page{
		Title:     "Error / Error",
		Icon:      "⚠️",
		IconLabel: "Warning",
		IsError:   true,
		Sections: []Section{
			{Heading: "Error", Lines: []Line{{Text: en}}},
			{Heading: "Error", Lines: []Line{{Text: es}}},
		},
		ContactEN:    "Need help?",
		ContactES:    "¿Necesitas ayuda?",
		ContactEmail: contact,
	}
}

// Render writes p with the given status. Pages are never cached: their content depends
// on the token state at request time.
func Render(w http.ResponseWriter, status int, p Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := page.Execute(w, p); err != nil {
		log.Errorf("pages.render: %s", err)
	}
}
