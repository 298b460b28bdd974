package app

import (
	"time"

	"github.com/mbolis/signup/config"
	"github.com/mbolis/signup/database"
	"github.com/mbolis/signup/mail"
	"github.com/mbolis/signup/ratelimit"
)

type Mailer interface {
	SendAdminNotify(to string, data mail.AdminNotifyData) error
	SendWelcome(to string, data mail.WelcomeData) error
}

type App struct {
	// nil when the database could not be opened; DBError says why
	*database.DB
	DBError error

	Mailer  Mailer
	Outbox  *mail.Dispatcher
	Limiter ratelimit.Limiter
	Clock   func() time.Time

	config.Config
}

func (a App) Now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}
