package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	messages []string
	failFor  map[string]error
}

func (f *fakeSender) Send(ctx context.Context, number, message string, attachment *Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[number]; ok {
		return err
	}
	f.sent = append(f.sent, number)
	f.messages = append(f.messages, message)
	return nil
}

type outcome struct {
	sent bool
	line string
}

type fakeRecorder struct {
	mu         sync.Mutex
	outcomes   []outcome
	finalState string
	finalLine  string
}

func (f *fakeRecorder) RecordOutcome(id string, sent bool, logLine string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome{sent: sent, line: logLine})
	return nil
}

func (f *fakeRecorder) Finish(id, status, logLine string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalState = status
	f.finalLine = logLine
	return nil
}

func instantDispatcher(store Recorder, sender Sender) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(store, sender)
	delays := &[]time.Duration{}
	d.sleep = func(dur time.Duration) { *delays = append(*delays, dur) }
	return d, delays
}

func contactList(n int) []Contact {
	contacts := make([]Contact, n)
	for i := range contacts {
		contacts[i] = Contact{Numero: fmt.Sprintf("55119999900%02d", i), Nome: fmt.Sprintf("Contato %d", i)}
	}
	return contacts
}

func TestDispatcherRunAllSuccess(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeRecorder{}
	d, delays := instantDispatcher(store, sender)

	contacts := []Contact{
		{Numero: "5511999990001", Nome: "Ana"},
		{Numero: "5511999990002", Nome: "Bruno"},
		{Numero: "5511999990003", Nome: "Clara"},
	}
	d.Run(context.Background(), Job{ID: "c1", Contacts: contacts, Template: "Oi {name}!"})

	require.Len(t, store.outcomes, 3)
	for _, o := range store.outcomes {
		assert.True(t, o.sent)
	}
	assert.Equal(t, "Mensagem enviada para Ana (5511999990001)", store.outcomes[0].line)
	assert.Equal(t, []string{"Oi Ana!", "Oi Bruno!", "Oi Clara!"}, sender.messages)

	assert.Equal(t, "Finalizada (3 enviadas, 0 falhas)", store.finalState)
	assert.Equal(t, "Campanha finalizada: 3 enviadas, 0 falhas", store.finalLine)

	// No pause after the last contact.
	assert.Len(t, *delays, 2)
}

func TestDispatcherRunFailureIsolation(t *testing.T) {
	contacts := contactList(5)
	sender := &fakeSender{failFor: map[string]error{
		contacts[2].Numero: errors.New("recipient is not on whatsapp"),
	}}
	store := &fakeRecorder{}
	d, _ := instantDispatcher(store, sender)

	d.Run(context.Background(), Job{ID: "c2", Contacts: contacts, Template: "Olá {name}"})

	require.Len(t, store.outcomes, 5)
	sent, failed := 0, 0
	for _, o := range store.outcomes {
		if o.sent {
			sent++
		} else {
			failed++
		}
	}
	assert.Equal(t, 4, sent)
	assert.Equal(t, 1, failed)
	assert.Contains(t, store.outcomes[2].line, "Falha ao enviar para Contato 2")
	assert.Contains(t, store.outcomes[2].line, "recipient is not on whatsapp")

	assert.Equal(t, "Finalizada (4 enviadas, 1 falhas)", store.finalState)
}

func TestDispatcherRunPacingSchedule(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeRecorder{}
	d, delays := instantDispatcher(store, sender)

	d.Run(context.Background(), Job{ID: "c3", Contacts: contactList(12), Template: "msg"})

	require.Len(t, *delays, 11)
	for i, delay := range *delays {
		if i == 9 { // pause following the 10th send
			assert.GreaterOrEqual(t, delay, longPauseMinMs*time.Millisecond)
			assert.LessOrEqual(t, delay, longPauseMaxMs*time.Millisecond)
		} else {
			assert.GreaterOrEqual(t, delay, shortPauseMinMs*time.Millisecond)
			assert.LessOrEqual(t, delay, shortPauseMaxMs*time.Millisecond)
		}
	}
}

func TestDispatcherRunAttachmentForwarded(t *testing.T) {
	var got *Attachment
	sender := senderFunc(func(ctx context.Context, number, message string, attachment *Attachment) error {
		got = attachment
		return nil
	})
	store := &fakeRecorder{}
	d, _ := instantDispatcher(store, sender)

	attachment := &Attachment{URL: "https://files.example.com/abc-oferta.pdf", MimeType: "application/pdf", FileName: "oferta.pdf"}
	d.Run(context.Background(), Job{ID: "c4", Contacts: contactList(1), Template: "veja o anexo", Attachment: attachment})

	require.NotNil(t, got)
	assert.Equal(t, attachment, got)
}

type senderFunc func(ctx context.Context, number, message string, attachment *Attachment) error

func (f senderFunc) Send(ctx context.Context, number, message string, attachment *Attachment) error {
	return f(ctx, number, message, attachment)
}
