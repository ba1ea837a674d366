package checkin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gatepass/server/internal/credential"
	"github.com/gatepass/server/internal/model"
	"github.com/gatepass/server/internal/repo/memory"
	"github.com/gatepass/server/internal/storage"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-credential-secret-at-least-32-bytes"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 10, 22, 9, 0, 0, 0, time.UTC)}
}

// Now advances one second per call so successive scans are strictly ordered.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	codec    *credential.Codec
	store    *memory.Store
	images   *storage.MemoryStore
	verifier *Verifier
	service  *Service
	issuer   *Issuer
	clock    *fakeClock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, policy Policy, opts ...credential.Option) *fixture {
	t.Helper()
	codec, err := credential.NewCodec(testSecret, opts...)
	require.NoError(t, err)

	store := memory.New()
	images := storage.NewMemoryStore()
	logger := discardLogger()
	clock := newFakeClock()

	verifier := NewVerifier(codec, store, store, logger)
	service := NewService(verifier, store, store, policy, logger)
	service.now = clock.Now
	issuer := NewIssuer(codec, store, store, images, logger)
	issuer.now = clock.Now

	return &fixture{
		codec:    codec,
		store:    store,
		images:   images,
		verifier: verifier,
		service:  service,
		issuer:   issuer,
		clock:    clock,
	}
}

func (f *fixture) addAttendee(id int64, code string, eventID int64) model.Attendee {
	a := model.Attendee{
		ID:               id,
		EventID:          eventID,
		RegistrationCode: code,
		Name:             "Ada Lovelace",
		Email:            "ada@example.com",
	}
	f.store.AddAttendee(a)
	return a
}

// issueExample adds attendee 42 (REG-AB12CD34, event 7) and issues its credential.
func (f *fixture) issueExample(t *testing.T) model.SealedPayload {
	t.Helper()
	f.addAttendee(42, "REG-AB12CD34", 7)
	res, err := f.issuer.Issue(context.Background(), 42)
	require.NoError(t, err)
	return res.Credential.SealedPayload
}

func legacyJSON(t *testing.T, attendeeID any, code string, eventID int64, hash string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"attendee_id":     attendeeID,
		"registration_id": code,
		"event_id":        eventID,
		"name":            "Ada Lovelace",
		"email":           "ada@example.com",
		"timestamp":       1761123600,
		"hash":            hash,
	})
	require.NoError(t, err)
	return string(b)
}

func (f *fixture) mustAttendee(t *testing.T, id int64) model.Attendee {
	t.Helper()
	a, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}
