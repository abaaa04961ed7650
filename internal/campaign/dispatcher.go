package campaign

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Sender delivers one message to one recipient and reports the
// outcome. The backend's implementation relays through the gateway.
type Sender interface {
	Send(ctx context.Context, number, message string, attachment *Attachment) error
}

// Recorder is the slice of the Store the dispatcher writes through.
type Recorder interface {
	RecordOutcome(id string, sent bool, logLine string) error
	Finish(id, status, logLine string) error
}

// Dispatcher drives one campaign's contact list to completion:
// strictly sequential sends with randomized pacing, per-recipient
// outcome recording, and a terminal status line. Per-recipient
// failures never abort the run; a dropped session just produces a
// string of failures until the gateway reconnects.
type Dispatcher struct {
	store  Recorder
	sender Sender

	// sleep is swappable so tests run without the real pauses.
	sleep func(time.Duration)
}

// NewDispatcher creates a dispatcher over the given store and sender.
func NewDispatcher(store Recorder, sender Sender) *Dispatcher {
	return &Dispatcher{
		store:  store,
		sender: sender,
		sleep:  time.Sleep,
	}
}

// Run processes the job to completion. It is meant to be launched in
// its own goroutine after the submission has been accepted; results
// flow only through the store.
func (d *Dispatcher) Run(ctx context.Context, job Job) {
	log.Printf("[DISPATCH] Campaign %s started with %d contacts", job.ID, len(job.Contacts))

	sent, failed := 0, 0
	for i, contact := range job.Contacts {
		message := Personalize(job.Template, contact.Nome)

		var line string
		sendErr := d.sender.Send(ctx, contact.Numero, message, job.Attachment)
		if sendErr != nil {
			failed++
			line = fmt.Sprintf("Falha ao enviar para %s (%s): %v", contact.Nome, contact.Numero, sendErr)
		} else {
			sent++
			line = fmt.Sprintf("Mensagem enviada para %s (%s)", contact.Nome, contact.Numero)
		}
		log.Printf("[DISPATCH] %s: %s", job.ID, line)

		if err := d.store.RecordOutcome(job.ID, sendErr == nil, line); err != nil {
			log.Printf("[DISPATCH] %s: failed to record outcome: %v", job.ID, err)
		}

		if i < len(job.Contacts)-1 {
			d.sleep(delayAfter(i + 1))
		}
	}

	status := fmt.Sprintf("Finalizada (%d enviadas, %d falhas)", sent, failed)
	closing := fmt.Sprintf("Campanha finalizada: %d enviadas, %d falhas", sent, failed)
	if err := d.store.Finish(job.ID, status, closing); err != nil {
		log.Printf("[DISPATCH] %s: failed to finalize: %v", job.ID, err)
	}
	log.Printf("[DISPATCH] Campaign %s finished: %d sent, %d failed", job.ID, sent, failed)
}
