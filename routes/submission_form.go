package routes

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ajg/form"
	"github.com/go-playground/validator/v10"
	"github.com/mbolis/signup/httpx"
	"github.com/mbolis/signup/model"
)

const maxFormMemory = 64 << 10

var validate = validator.New()

var (
	msgBadForm = httpx.Msg{
		EN: "Invalid form data",
		ES: "Datos del formulario no válidos",
	}
	msgInvalidEmail = httpx.Msg{
		EN: "Please enter a valid email address",
		ES: "Por favor ingresa un correo electrónico válido",
	}
)

func msgRequired(f model.SubmissionField) httpx.Msg {
	return httpx.Msg{
		EN: fmt.Sprintf("%s is required", f.LabelEN),
		ES: fmt.Sprintf("%s es obligatorio", f.LabelES),
	}
}

func msgTooLong(f model.SubmissionField) httpx.Msg {
	return httpx.Msg{
		EN: fmt.Sprintf("%s is too long (maximum %d characters)", f.LabelEN, f.MaxLen),
		ES: fmt.Sprintf("%s es demasiado largo (máximo %d caracteres)", f.LabelES, f.MaxLen),
	}
}

type submissionForm struct {
	Name    string `form:"name"`
	Email   string `form:"email"`
	Country string `form:"country"`
	State   string `form:"state"`
	City    string `form:"city"`
	ZipCode string `form:"zip_code"`
}

func (f submissionForm) value(field string) string {
	switch field {
	case "name":
		return f.Name
	case "email":
		return f.Email
	case "country":
		return f.Country
	case "state":
		return f.State
	case "city":
		return f.City
	case "zip_code":
		return f.ZipCode
	}
	return ""
}

// parseSubmission decodes a urlencoded or multipart body into a sanitized submission.
// Fields are checked in model.SubmissionFields order and the first failure is returned.
func parseSubmission(r *http.Request, required []string) (*model.Submission, *httpx.Error) {
	err := r.ParseMultipartForm(maxFormMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, &httpx.Error{Kind: httpx.KindValidation, Msg: msgBadForm, Err: err}
	}

	dec := form.NewDecoder(nil)
	dec.IgnoreUnknownKeys(true)

	var raw submissionForm
	if err := dec.DecodeValues(&raw, r.PostForm); err != nil {
		return nil, &httpx.Error{Kind: httpx.KindValidation, Msg: msgBadForm, Err: err}
	}

	clean := make(map[string]string, len(model.SubmissionFields))
	for _, f := range model.SubmissionFields {
		v := model.Sanitize(raw.value(f.Name))
		if f.Name == "email" {
			v = strings.ToLower(v)
		}

		if v == "" {
			if f.Required || slices.Contains(required, f.Name) {
				return nil, httpx.Validation(msgRequired(f))
			}
			continue
		}
		if utf8.RuneCountInString(v) > f.MaxLen {
			return nil, httpx.Validation(msgTooLong(f))
		}
		if f.Name == "email" && validate.Var(v, "required,email") != nil {
			return nil, httpx.Validation(msgInvalidEmail)
		}
		clean[f.Name] = v
	}

	s := &model.Submission{
		Name:    clean["name"],
		Email:   clean["email"],
		Country: clean["country"],
		State:   clean["state"],
		City:    clean["city"],
		ZipCode: clean["zip_code"],
	}
	if s.Name == "" {
		s.Name = model.DefaultName
	}
	return s, nil
}
