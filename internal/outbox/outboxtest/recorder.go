// Package outboxtest provides an in-memory outbox.Publisher for tests.
package outboxtest

import (
	"context"
	"sync"

	"portal-service/internal/models"
	"portal-service/internal/outbox"
)

// Published is one recorded PublishApplicationUpdated call.
type Published struct {
	ApplicationID string
	Status        models.ApplicationStatus
	Meta          outbox.Meta
	App           *models.Application
}

type Recorder struct {
	mu     sync.Mutex
	events []Published
}

var _ outbox.Publisher = (*Recorder)(nil)

func (r *Recorder) PublishApplicationUpdated(_ context.Context, app *models.Application, meta outbox.Meta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Published{
		ApplicationID: app.ApplicationID(),
		Status:        app.Status(),
		Meta:          meta,
		App:           app,
	})
}

func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.events...)
}

func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *Recorder) Last() (Published, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Published{}, false
	}
	return r.events[len(r.events)-1], true
}
