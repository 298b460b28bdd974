package routes

import (
	"errors"
	"html"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/render"
	"github.com/mbolis/signup/app"
	"github.com/mbolis/signup/database"
	"github.com/mbolis/signup/httpx"
	"github.com/mbolis/signup/log"
	"github.com/mbolis/signup/mail"
	"github.com/mbolis/signup/metrics"
	"github.com/mbolis/signup/model"
)

var (
	msgThanks = httpx.Msg{
		EN: "Thank you for joining! We'll be in touch soon.",
		ES: "¡Gracias por unirte! Nos pondremos en contacto pronto.",
	}
	msgAlreadyRegistered = httpx.Msg{
		EN: "This email is already registered",
		ES: "Este correo electrónico ya está registrado",
	}
)

// Submit stores a join-form submission and greets the new member.
func Submit(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.MethodNotAllowed(w, r, "submit.method", http.MethodPost)
			return
		}

		sub, e := parseSubmission(r, app.Form.Required)
		if e != nil {
			metrics.IncSubmission("invalid")
			httpx.WriteError(w, r, "submit.validate", e, nil)
			return
		}
		fields := log.Fields{"email": sub.Email}

		if app.DB == nil {
			metrics.IncSubmission("error")
			httpx.WriteError(w, r, "submit.db_config", httpx.Configuration(app.DBError), fields)
			return
		}

		if ip, ok := httpx.ClientIP(r); ok {
			sub.IPAddress = &ip
			fields["ip"] = ip
		}

		token, err := model.NewUnsubscribeToken()
		if err != nil {
			metrics.IncSubmission("error")
			httpx.WriteError(w, r, "submit.token", httpx.Infra(err), fields)
			return
		}
		sub.UnsubscribeToken = token
		sub.SubmittedAt = app.Now().UTC()

		err = app.InsertSubmission(r.Context(), sub)
		if errors.Is(err, database.ErrDuplicateEmail) {
			metrics.IncSubmission("duplicate")
			httpx.WriteError(w, r, "submit.insert", httpx.Conflict(msgAlreadyRegistered), fields)
			return
		}
		if err != nil {
			metrics.IncSubmission("error")
			httpx.WriteError(w, r, "submit.insert", httpx.Infra(err), fields)
			return
		}

		metrics.IncSubmission("created")
		log.WithFields(fields).WithField("id", sub.ID).Info("submit: new member")

		notifyNewMember(app, *sub)

		render.JSON(w, r, httpx.Response{Success: true, Message: msgThanks.String()})
	}
}

// notifyNewMember queues the admin notification and the welcome email. Stored values
// are entity-encoded, so they are decoded before going into templates that escape again.
func notifyNewMember(app app.App, s model.Submission) {
	if app.Mailer == nil || app.Outbox == nil {
		return
	}
	fields := log.Fields{"op": "submit.notify", "email": s.Email}
	email := html.UnescapeString(s.Email)
	name := html.UnescapeString(s.Name)

	if admin := app.Mail.AdminEmail; admin != "" {
		ip := ""
		if s.IPAddress != nil {
			ip = *s.IPAddress
		}
		data := mail.AdminNotifyData{
			SiteName:    app.Site.Name,
			Name:        name,
			Email:       email,
			Country:     html.UnescapeString(s.Country),
			State:       html.UnescapeString(s.State),
			City:        html.UnescapeString(s.City),
			ZipCode:     html.UnescapeString(s.ZipCode),
			SubmittedAt: s.SubmittedAt,
			IP:          ip,
		}
		app.Outbox.Go("admin", fields, func() error {
			return app.Mailer.SendAdminNotify(admin, data)
		})
	}

	link := unsubscribeURL(app.Site.BaseURL, s.UnsubscribeToken)
	if link == "" {
		log.WithFields(fields).Warn("site.base_url not set: welcome email has no unsubscribe link")
	}
	data := mail.WelcomeData{
		SiteName:       app.Site.Name,
		Name:           name,
		UnsubscribeURL: link,
		ContactEmail:   app.Site.ContactEmail,
	}
	app.Outbox.Go("welcome", fields, func() error {
		return app.Mailer.SendWelcome(email, data)
	})
}

// unsubscribeURL builds the opt-out link from the configured base URL only.
func unsubscribeURL(base, token string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	u.Path = path.Join("/", u.Path, "unsubscribe")
	u.RawQuery = url.Values{"token": {token}}.Encode()
	u.Fragment = ""
	return u.String()
}
