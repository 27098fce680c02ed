package service

import (
	"sync"

	"hospital_locker/server/locker/domain"
)

// Credentials is what a successful sign-in yields.
type Credentials struct {
	Token string
	UID   string
	Email string
	Role  domain.Role
}

// Session holds the signed-in identity in memory only. Every sign-in and
// sign-out bumps the generation so that responses started under an older
// identity can be recognised and dropped.
type Session struct {
	mu         sync.RWMutex
	creds      Credentials
	active     bool
	generation uint64
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Begin(creds Credentials) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.active = true
	s.generation++
	return s.generation
}

func (s *Session) End() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.active = false
	s.generation++
	return s.generation
}

func (s *Session) Current() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.active
}

func (s *Session) state() (Credentials, bool, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.active, s.generation
}

func (s *Session) Identity() (string, string, string, bool) {
	creds, ok := s.Current()
	if !ok {
		return "", "", "", false
	}
	return creds.UID, creds.Email, creds.Role.String(), true
}

func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Session) IsCurrent(generation uint64) bool {
	return s.Generation() == generation
}
