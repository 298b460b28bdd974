package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

const adminNotifyTpl = `New member submission from the {{.SiteName}} website:

Name: {{.Name}}
Email: {{.Email}}
Country: {{or .Country "Not provided"}}
State: {{or .State "Not provided"}}
City: {{or .City "Not provided"}}
ZIP code: {{or .ZipCode "Not provided"}}

Submitted: {{.SubmittedAt.Format "2006-01-02 15:04:05 MST"}}
IP Address: {{or .IP "unknown"}}
`

const welcomeTpl = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
</head>
<body style="font-family:-apple-system,BlinkMacSystemFont,Segoe UI,Roboto,Helvetica Neue,Arial,sans-serif;background:#f5f5f5;padding:20px;color:#333">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#2c3e50">Welcome, {{.Name}}!</h2>
  <p>Thank you for joining {{.SiteName}}. We will be in touch soon with news and ways to get involved.</p>
  <hr style="border:none;border-top:1px solid #eaeaea;margin:24px 0" />
  <h2 style="color:#2c3e50">¡Bienvenido/a, {{.Name}}!</h2>
  <p>Gracias por unirte a {{.SiteName}}. Pronto nos pondremos en contacto con noticias y formas de participar.</p>
  {{if .ContactEmail}}
  <p style="margin-top:24px">Questions? / ¿Preguntas? <a href="mailto:{{.ContactEmail}}">{{.ContactEmail}}</a></p>
  {{end}}
  {{if .UnsubscribeURL}}
  <p style="color:#999;font-size:12px;margin-top:24px">
    To stop receiving emails, <a href="{{.UnsubscribeURL}}">unsubscribe here</a>.<br />
    Para dejar de recibir correos, <a href="{{.UnsubscribeURL}}">date de baja aquí</a>.
  </p>
  {{end}}
</div>
</body>
</html>`

var (
	adminNotify = texttemplate.Must(texttemplate.New("admin").Parse(adminNotifyTpl))
	welcome     = htmltemplate.Must(htmltemplate.New("welcome").Parse(welcomeTpl))
)

// AdminNotifyData is the data for the new-member notification sent to the organizers.
type AdminNotifyData struct {
	SiteName    string
	Name        string
	Email       string
	Country     string
	State       string
	City        string
	ZipCode     string
	SubmittedAt time.Time
	IP          string
}

// WelcomeData is the data for the bilingual welcome email.
type WelcomeData struct {
	SiteName       string
	Name           string
	UnsubscribeURL string
	ContactEmail   string
}

// SendAdminNotify tells the organizers about a new member. Replies go to the member.
func (s *Sender) SendAdminNotify(to string, data AdminNotifyData) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("mail: admin email not configured")
	}
	if data.SiteName == "" {
		data.SiteName = s.site.Name
	}

	var buf bytes.Buffer
	if err := adminNotify.Execute(&buf, data); err != nil {
		return err
	}
	return s.Send(Message{
		To:      []string{to},
		ReplyTo: data.Email,
		Subject: fmt.Sprintf("New member from the %s website", data.SiteName),
		Text:    buf.String(),
	})
}

// SendWelcome greets a new member and carries their unsubscribe link.
func (s *Sender) SendWelcome(to string, data WelcomeData) error {
	if data.SiteName == "" {
		data.SiteName = s.site.Name
	}
	if data.ContactEmail == "" {
		data.ContactEmail = s.site.ContactEmail
	}

	var buf bytes.Buffer
	if err := welcome.Execute(&buf, data); err != nil {
		return err
	}
	return s.Send(Message{
		To:      []string{to},
		Subject: fmt.Sprintf("Welcome to %s / Bienvenido/a a %s", data.SiteName, data.SiteName),
		HTML:    buf.String(),
	})
}
