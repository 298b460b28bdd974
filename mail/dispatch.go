package mail

import (
	"context"
	"sync"

	"github.com/mbolis/signup/log"
	"github.com/mbolis/signup/metrics"
)

// Dispatcher runs best-effort sends off the request path. Failures are logged and
// counted, never returned.
type Dispatcher struct {
	wg sync.WaitGroup
}

func (d *Dispatcher) Go(kind string, fields log.Fields, send func() error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				metrics.IncEmail(kind, "failed")
				log.WithFields(fields).WithField("mail", kind).Errorf("mail send panicked: %v", p)
			}
		}()

		if err := send(); err != nil {
			metrics.IncEmail(kind, "failed")
			log.WithFields(fields).WithField("mail", kind).WithError(err).Error("mail send failed")
			return
		}
		metrics.IncEmail(kind, "sent")
		log.WithFields(fields).WithField("mail", kind).Debug("mail sent")
	}()
}

// Wait blocks until every dispatched send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// WaitContext is Wait bounded by ctx. Sends still running when ctx ends are abandoned.
func (d *Dispatcher) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
