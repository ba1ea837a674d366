package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gatepass/server/internal/model"
	"github.com/gatepass/server/internal/repo"
)

// Store is an in-memory AttendeeRepo and CredentialRepo. Presence updates lock
// only the affected attendee row.
type Store struct {
	mu          sync.RWMutex
	attendees   map[int64]*attendeeRow
	credentials map[int64]model.Credential // keyed by attendee id
	nextCredID  int64
}

type attendeeRow struct {
	mu sync.Mutex
	a  model.Attendee
}

var (
	_ repo.AttendeeRepo   = (*Store)(nil)
	_ repo.CredentialRepo = (*Store)(nil)
)

func New() *Store {
	return &Store{
		attendees:   make(map[int64]*attendeeRow),
		credentials: make(map[int64]model.Credential),
	}
}

// AddAttendee inserts or overwrites an attendee record.
func (s *Store) AddAttendee(a model.Attendee) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendees[a.ID] = &attendeeRow{a: a}
}

// DeleteAttendee removes the attendee and its credential.
func (s *Store) DeleteAttendee(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attendees, id)
	delete(s.credentials, id)
}

func (s *Store) row(id int64) (*attendeeRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.attendees[id]
	return r, ok
}

func (s *Store) GetByID(_ context.Context, id int64) (model.Attendee, error) {
	r, ok := s.row(id)
	if !ok {
		return model.Attendee{}, fmt.Errorf("attendee: %w", repo.ErrNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.a, nil
}

func (s *Store) GetByIDAndCode(ctx context.Context, id int64, registrationCode string) (model.Attendee, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return model.Attendee{}, err
	}
	if a.RegistrationCode != registrationCode {
		return model.Attendee{}, fmt.Errorf("attendee: %w", repo.ErrNotFound)
	}
	return a, nil
}

func (s *Store) UpdatePresence(_ context.Context, id int64, registrationCode string, fn repo.PresenceFunc) (model.Attendee, error) {
	r, ok := s.row(id)
	if !ok {
		return model.Attendee{}, fmt.Errorf("attendee: %w", repo.ErrNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.a.RegistrationCode != registrationCode {
		return model.Attendee{}, fmt.Errorf("attendee: %w", repo.ErrNotFound)
	}

	next, changed, err := fn(r.a)
	if err != nil {
		return model.Attendee{}, err
	}
	if changed {
		r.a.Presence = next
	}
	return r.a, nil
}

func (s *Store) Put(_ context.Context, attendeeID int64, payload model.SealedPayload, imageKey string) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attendees[attendeeID]; !ok {
		return model.Credential{}, fmt.Errorf("attendee: %w", repo.ErrNotFound)
	}
	if _, ok := s.credentials[attendeeID]; ok {
		return model.Credential{}, repo.ErrCredentialExists
	}
	return s.insertLocked(attendeeID, payload, imageKey), nil
}

func (s *Store) insertLocked(attendeeID int64, payload model.SealedPayload, imageKey string) model.Credential {
	s.nextCredID++
	cred := model.Credential{
		ID:            s.nextCredID,
		AttendeeID:    attendeeID,
		SealedPayload: payload,
		ImageKey:      imageKey,
		CreatedAt:     time.Now().UTC(),
	}
	s.credentials[attendeeID] = cred
	return cred
}

func (s *Store) GetByAttendee(_ context.Context, attendeeID int64) (model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[attendeeID]
	if !ok {
		return model.Credential{}, fmt.Errorf("credential: %w", repo.ErrNotFound)
	}
	return cred, nil
}

func (s *Store) MarkConsumed(_ context.Context, credentialID int64, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for attendeeID, cred := range s.credentials {
		if cred.ID != credentialID {
			continue
		}
		if !cred.Consumed {
			w := when
			cred.Consumed = true
			cred.ConsumedAt = &w
			s.credentials[attendeeID] = cred
		}
		return nil
	}
	return fmt.Errorf("credential: %w", repo.ErrNotFound)
}

func (s *Store) Replace(ctx context.Context, attendeeID int64, payload model.SealedPayload, imageKey string) (model.Credential, string, error) {
	return s.replace(attendeeID, "", payload, imageKey)
}

func (s *Store) ReplaceWithCode(ctx context.Context, attendeeID int64, registrationCode string, payload model.SealedPayload, imageKey string) (model.Credential, string, error) {
	if registrationCode == "" {
		return model.Credential{}, "", fmt.Errorf("registration code is required")
	}
	return s.replace(attendeeID, registrationCode, payload, imageKey)
}

func (s *Store) replace(attendeeID int64, newCode string, payload model.SealedPayload, imageKey string) (model.Credential, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.attendees[attendeeID]
	if !ok {
		return model.Credential{}, "", fmt.Errorf("attendee: %w", repo.ErrNotFound)
	}
	if newCode != "" {
		r.mu.Lock()
		r.a.RegistrationCode = newCode
		r.mu.Unlock()
	}

	var oldImageKey string
	if old, ok := s.credentials[attendeeID]; ok {
		oldImageKey = old.ImageKey
		delete(s.credentials, attendeeID)
	}
	return s.insertLocked(attendeeID, payload, imageKey), oldImageKey, nil
}
