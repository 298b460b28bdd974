package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mbolis/signup/app"
	"github.com/mbolis/signup/database"
	"github.com/mbolis/signup/log"
	"github.com/mbolis/signup/metrics"
	"github.com/mbolis/signup/model"
	"github.com/mbolis/signup/pages"
)

// Unsubscribe flips the subscription owning ?token= to unsubscribed and renders the outcome.
func Unsubscribe(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contact := app.Site.ContactEmail

		// only GET changes state; HEAD from link previewers must not unsubscribe anyone
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			pages.Render(w, http.StatusMethodNotAllowed, pages.Error(
				"Method not allowed.",
				"Método no permitido.",
				contact))
			return
		}

		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			metrics.IncUnsubscribe("invalid")
			pages.Render(w, http.StatusBadRequest, pages.Error(
				"Invalid unsubscribe link. Please use the link from your email.",
				"Enlace de baja no válido. Por favor usa el enlace de tu correo electrónico.",
				contact))
			return
		}
		if !model.ValidToken(token) {
			metrics.IncUnsubscribe("invalid")
			log.WithFields(log.Fields{"op": "unsubscribe.token"}).Debug("malformed unsubscribe token")
			pages.Render(w, http.StatusBadRequest, pages.Error(
				"Invalid unsubscribe token.",
				"Token de baja no válido.",
				contact))
			return
		}

		fields := log.Fields{"op": "unsubscribe", "token_prefix": token[:8]}

		if app.DB == nil {
			metrics.IncUnsubscribe("error")
			log.WithFields(fields).WithError(app.DBError).Error("database not available")
			renderUnsubscribeFailure(w, contact)
			return
		}

		result, email, err := app.DB.Unsubscribe(r.Context(), token, app.Now().UTC())
		if errors.Is(err, database.ErrTokenNotFound) {
			metrics.IncUnsubscribe("not_found")
			log.WithFields(fields).Info("unsubscribe token not found")
			pages.Render(w, http.StatusOK, pages.Error(
				"Unsubscribe link not found or expired.",
				"Enlace de baja no encontrado o expirado.",
				contact))
			return
		}
		if err != nil {
			metrics.IncUnsubscribe("error")
			log.WithFields(fields).WithError(err).Error("unsubscribe failed")
			renderUnsubscribeFailure(w, contact)
			return
		}

		fields["email"] = email
		if result == model.AlreadyUnsubscribed {
			metrics.IncUnsubscribe("already")
			log.WithFields(fields).Info("member already unsubscribed")
			pages.Render(w, http.StatusOK, pages.AlreadyUnsubscribed(app.Site.Name, email, contact))
			return
		}

		metrics.IncUnsubscribe("unsubscribed")
		log.WithFields(fields).Info("member unsubscribed")
		pages.Render(w, http.StatusOK, pages.Unsubscribed(app.Site.Name, email, contact))
	}
}

func renderUnsubscribeFailure(w http.ResponseWriter, contact string) {
	pages.Render(w, http.StatusInternalServerError, pages.Error(
		"An error occurred while processing your request. Please try again later.",
		"Ocurrió un error al procesar tu solicitud. Por favor intenta de nuevo más tarde.",
		contact))
}
