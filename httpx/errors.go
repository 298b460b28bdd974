package httpx

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/mbolis/signup/log"
)

// Msg is a user-facing message in English and Spanish.
type Msg struct {
	EN string
	ES string
}

func (m Msg) String() string {
	return m.EN + " / " + m.ES
}

type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindConfiguration
	KindInfra
	KindNotFound
	KindThrottled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindConfiguration:
		return "configuration"
	case KindInfra:
		return "infra"
	case KindNotFound:
		return "not_found"
	case KindThrottled:
		return "throttled"
	}
	return "unknown"
}

// Status maps an error kind to the HTTP status sent to the client.
// A duplicate email is the caller's fault and shares the 400 of validation errors.
// An unknown unsubscribe token is reported by the page content alone.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusOK
	case KindThrottled:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Internal reports whether the error detail must stay in server logs.
func (k Kind) Internal() bool {
	return k == KindConfiguration || k == KindInfra
}

var MsgInternal = Msg{
	EN: "There was an error processing your request. Please try again later.",
	ES: "Hubo un error al procesar tu solicitud. Por favor intenta de nuevo más tarde.",
}

var MsgMethodNotAllowed = Msg{
	EN: "Method not allowed",
	ES: "Método no permitido",
}

// Error is the failing half of a handler result: a kind that decides the status code
// and a bilingual message for the user. Err carries the cause for the server log.
type Error struct {
	Kind Kind
	Msg  Msg
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg.EN, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg.EN)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(msg Msg) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Conflict(msg Msg) *Error {
	return &Error{Kind: KindConflict, Msg: msg}
}

func Configuration(err error) *Error {
	return &Error{Kind: KindConfiguration, Msg: MsgInternal, Err: err}
}

func Infra(err error) *Error {
	return &Error{Kind: KindInfra, Msg: MsgInternal, Err: err}
}

// Response is the JSON envelope of the form endpoints.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LogError logs e with the operation code and fields: internal kinds at ERROR with the
// cause, client errors at DEBUG.
func LogError(code string, e *Error, fields log.Fields) {
	entry := log.WithFields(fields).WithField("op", code).WithField("kind", e.Kind.String())
	if e.Kind.Internal() {
		entry.WithError(e.Err).Error(e.Msg.EN)
		return
	}
	entry.Debug(e.Msg.EN)
}

// WriteError logs e and answers with the JSON envelope and the status of its kind.
func WriteError(w http.ResponseWriter, r *http.Request, code string, e *Error, fields log.Fields) {
	LogError(code, e, fields)
	render.Status(r, e.Kind.Status())
	render.JSON(w, r, Response{Success: false, Message: e.Msg.String()})
}

// Will log an error code at DEBUG level, and send a JSON 405 response
func MethodNotAllowed(w http.ResponseWriter, r *http.Request, code string, allowed ...string) {
	log.Debugf("%s: method %s not allowed", code, r.Method)
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	render.Status(r, http.StatusMethodNotAllowed)
	render.JSON(w, r, Response{Success: false, Message: MsgMethodNotAllowed.String()})
}
