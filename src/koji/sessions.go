package koji

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionMaxAge is how long a hub session is reused before it is replaced.
const SessionMaxAge = 3550 * time.Second

// ProfileLoader resolves a koji profile by name.
type ProfileLoader func(name string) (Profile, error)

// Sessions caches one session per side. The source session is anonymous,
// the destination session is authenticated.
type Sessions struct {
	Load   ProfileLoader
	Auth   Authenticator
	MaxAge time.Duration
	Logger zerolog.Logger

	mu    sync.Mutex
	cache map[Side]*Session
	now   func() time.Time
}

// NewSessions returns a cache reading profiles from the default koji
// configuration and logging in with GSSAPI.
func NewSessions(logger zerolog.Logger) *Sessions {
	return &Sessions{
		Load:   func(name string) (Profile, error) { return LoadProfile(name) },
		Auth:   GSSAPI{},
		MaxAge: SessionMaxAge,
		Logger: logger,
	}
}

// Get returns a live session for side using the named profile. A cached
// session is replaced when the profile changed or it is older than MaxAge.
func (s *Sessions) Get(ctx context.Context, side Side, profile string) (Hub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil {
		s.cache = make(map[Side]*Session)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	maxAge := s.MaxAge
	if maxAge == 0 {
		maxAge = SessionMaxAge
	}

	if cur, ok := s.cache[side]; ok {
		if cur.Profile.Name == profile && now().Sub(cur.Created()) < maxAge {
			return cur, nil
		}
		s.Logger.Debug().Str("side", string(side)).Str("profile", cur.Profile.Name).Msg("replacing koji session")
		if err := cur.Logout(ctx); err != nil {
			s.Logger.Warn().Err(err).Str("side", string(side)).Msg("koji logout failed")
		}
		delete(s.cache, side)
	}

	p, err := s.Load(profile)
	if err != nil {
		return nil, err
	}
	httpClient, err := p.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("koji %s: %w", profile, err)
	}

	sess := NewSession(p, httpClient)
	if s.now != nil {
		sess.created = s.now()
	}
	if side == Destination {
		if err := sess.Login(ctx, s.Auth); err != nil {
			return nil, err
		}
		if s.now != nil {
			sess.created = s.now()
		}
		s.Logger.Info().Str("profile", profile).Msg("logged in to destination koji")
	}
	s.cache[side] = sess
	return sess, nil
}

// Close logs out of all cached sessions.
func (s *Sessions) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for side, sess := range s.cache {
		if err := sess.Logout(ctx); err != nil {
			s.Logger.Warn().Err(err).Str("side", string(side)).Msg("koji logout failed")
		}
		delete(s.cache, side)
	}
}
