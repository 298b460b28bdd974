package model

import (
	"html"
	"regexp"
	"strings"
	"time"
)

// Submission is one completed join-form entry.
type Submission struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Country          string     `json:"country"`
	State            string     `json:"state"`
	City             string     `json:"city"`
	ZipCode          string     `json:"zip_code"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	IPAddress        *string    `json:"ip_address"`
	UnsubscribeToken string     `json:"-"`
	Unsubscribed     bool       `json:"unsubscribed"`
	UnsubscribedAt   *time.Time `json:"unsubscribed_at"`
}

// DefaultName is stored when the deployment does not require a name and none was given.
const DefaultName = "Anonymous"

// SubmissionField describes one form field accepted by the join form.
type SubmissionField struct {
	Name     string
	MaxLen   int
	LabelEN  string
	LabelES  string
	Required bool // always required, whatever the deployment says
}

// SubmissionFields lists the accepted form fields in validation order.
var SubmissionFields = []SubmissionField{
	{Name: "name", MaxLen: 255, LabelEN: "Name", LabelES: "Nombre"},
	{Name: "email", MaxLen: 255, LabelEN: "Email", LabelES: "Correo electrónico", Required: true},
	{Name: "country", MaxLen: 100, LabelEN: "Country", LabelES: "País"},
	{Name: "state", MaxLen: 100, LabelEN: "State", LabelES: "Estado"},
	{Name: "city", MaxLen: 100, LabelEN: "City", LabelES: "Ciudad"},
	{Name: "zip_code", MaxLen: 20, LabelEN: "ZIP code", LabelES: "Código postal"},
}

// IsSubmissionField reports whether name is one of SubmissionFields.
func IsSubmissionField(name string) bool {
	for _, f := range SubmissionFields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// UnsubscribeResult is the outcome of an unsubscribe request for an existing token.
type UnsubscribeResult int

const (
	Unsubscribed UnsubscribeResult = iota + 1
	AlreadyUnsubscribed
)

// reMarkup matches tags and comments, closed or running to the end of input. A '<' not
// followed by a tag name ("<3", "5 < 6") is text and survives as an entity.
var reMarkup = regexp.MustCompile(`<[a-zA-Z/!?][^>]*>?`)

// Sanitize trims the value, strips markup and HTML-entity-encodes what is left.
func Sanitize(value string) string {
	value = strings.TrimSpace(value)
	value = reMarkup.ReplaceAllLiteralString(value, "")
	return html.EscapeString(strings.TrimSpace(value))
}
