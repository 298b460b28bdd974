package routes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/mbolis/signup/app"
	"github.com/mbolis/signup/database"
	"github.com/mbolis/signup/httpx"
	"github.com/mbolis/signup/log"
)

const pingTimeout = 3 * time.Second

var (
	msgCountUnavailable = httpx.Msg{
		EN: "Member count is unavailable right now",
		ES: "El conteo de miembros no está disponible en este momento",
	}
	msgSetupDone = httpx.Msg{
		EN: "Database setup complete!",
		ES: "¡Configuración de la base de datos completa!",
	}
)

type countResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

// MemberCount returns the number of stored submissions. The figure changes slowly, so
// clients may cache it for five minutes.
func MemberCount(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.MethodNotAllowed(w, r, "member_count.method", http.MethodGet)
			return
		}

		fail := func(e *httpx.Error) {
			httpx.LogError("member_count", e, nil)
			render.Status(r, e.Kind.Status())
			render.JSON(w, r, countResponse{Success: false, Message: msgCountUnavailable.String()})
		}

		if app.DB == nil {
			fail(httpx.Configuration(app.DBError))
			return
		}
		n, err := app.CountSubmissions(r.Context())
		if err != nil {
			fail(httpx.Infra(err))
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=300")
		render.JSON(w, r, countResponse{Success: true, Count: n})
	}
}

const (
	checkPass = "pass"
	checkFail = "fail"

	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type healthCheck struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Driver   string `json:"driver,omitempty"`
	Host     string `json:"host,omitempty"`
	Database string `json:"database,omitempty"`
	Rows     *int   `json:"rows,omitempty"`
}

type healthResponse struct {
	Success   bool                   `json:"success"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]healthCheck `json:"checks"`
	Status    string                 `json:"status"`
}

// Health reports configuration, connectivity and table checks. Any failing check makes
// the whole service unhealthy.
func Health(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.MethodNotAllowed(w, r, "health.method", http.MethodGet)
			return
		}

		checks := runHealthChecks(r.Context(), app)
		resp := healthResponse{
			Success:   true,
			Timestamp: app.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
			Status:    statusHealthy,
		}
		for name, c := range checks {
			if c.Status != checkPass {
				resp.Success = false
				resp.Status = statusUnhealthy
				log.WithFields(log.Fields{"op": "health", "check": name}).Warn(c.Message)
			}
		}

		if !resp.Success {
			render.Status(r, http.StatusServiceUnavailable)
		}
		render.JSON(w, r, resp)
	}
}

func runHealthChecks(ctx context.Context, app app.App) map[string]healthCheck {
	checks := make(map[string]healthCheck, 3)

	cfg := app.Database
	conf := healthCheck{Status: checkPass, Driver: cfg.Driver, Host: cfg.Host, Database: cfg.Name}
	if cfg.Driver == "sqlite3" {
		conf.Host, conf.Database = "", cfg.Path
	}
	if !cfg.Complete() {
		conf.Status = checkFail
		conf.Message = "Database configuration incomplete"
	}
	checks["config"] = conf

	if app.DB == nil {
		checks["connection"] = healthCheck{Status: checkFail, Message: "Database connection unavailable"}
		return checks
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := app.PingContext(pingCtx); err != nil {
		log.WithFields(log.Fields{"op": "health.ping"}).WithError(err).Error("database ping failed")
		checks["connection"] = healthCheck{Status: checkFail, Message: "Database connection failed"}
		return checks
	}
	checks["connection"] = healthCheck{Status: checkPass}

	exists, err := app.TableExists(ctx)
	if err != nil {
		log.WithFields(log.Fields{"op": "health.table"}).WithError(err).Error("table lookup failed")
		checks["table"] = healthCheck{Status: checkFail, Message: "Could not inspect table " + database.Table}
		return checks
	}
	if !exists {
		checks["table"] = healthCheck{
			Status:  checkFail,
			Message: fmt.Sprintf("Table %s does not exist. Run /api/setup to create it.", database.Table),
		}
		return checks
	}

	n, err := app.CountSubmissions(ctx)
	if err != nil {
		log.WithFields(log.Fields{"op": "health.count"}).WithError(err).Error("row count failed")
		checks["table"] = healthCheck{Status: checkFail, Message: "Could not count rows of " + database.Table}
		return checks
	}
	checks["table"] = healthCheck{Status: checkPass, Rows: &n}
	return checks
}

type setupResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Table          string `json:"table"`
	Status         string `json:"status"`
	CurrentMembers int    `json:"current_members"`
}

// Setup creates the submissions table when missing. The route is guarded by
// middlewares.SetupKey.
func Setup(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			httpx.MethodNotAllowed(w, r, "setup.method", http.MethodGet, http.MethodPost)
			return
		}

		if app.DB == nil {
			httpx.WriteError(w, r, "setup.db_config", httpx.Configuration(app.DBError), nil)
			return
		}
		if err := app.Migrate(); err != nil {
			httpx.WriteError(w, r, "setup.migrate", httpx.Infra(err), nil)
			return
		}
		n, err := app.CountSubmissions(r.Context())
		if err != nil {
			httpx.WriteError(w, r, "setup.count", httpx.Infra(err), nil)
			return
		}

		log.WithFields(log.Fields{"op": "setup", "members": n}).Info("database ready")
		render.JSON(w, r, setupResponse{
			Success:        true,
			Message:        msgSetupDone.String(),
			Table:          database.Table,
			Status:         "ready",
			CurrentMembers: n,
		})
	}
}
