// Package session holds the authenticated session context that every
// collaborator receives explicitly.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSession = errors.New("no active session")

// Room is a room the logged-in user may order for.
type Room struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// FormType is one entry of the static-form catalogue.
type FormType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Profile is the user profile returned at login.
type Profile struct {
	RoomNo    string          `json:"room_no"`
	Role      string          `json:"role"`
	Rooms     []Room          `json:"rooms"`
	Features  map[string]bool `json:"features"`
	FormTypes []FormType      `json:"form_types"`
}

// IsAdmin reports whether the profile belongs to dining staff.
func (p Profile) IsAdmin() bool {
	return p.Role == "admin" || p.Role == "kitchen"
}

// DefaultRoom returns the first room of the profile, or 0.
func (p Profile) DefaultRoom() int {
	if len(p.Rooms) == 0 {
		return 0
	}
	return p.Rooms[0].ID
}

// HasRoom reports whether the profile may act for the room.
func (p Profile) HasRoom(id int) bool {
	for _, r := range p.Rooms {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Session is a bearer token plus the profile it was issued for.
type Session struct {
	Token   string  `json:"token"`
	Profile Profile `json:"profile"`
}

// ExpiresAt reads the exp claim of a JWT token without verifying it; the
// server remains the authority. Opaque tokens report ok=false.
func (s *Session) ExpiresAt() (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the token's exp claim is in the past at now.
func (s *Session) Expired(now time.Time) bool {
	exp, ok := s.ExpiresAt()
	return ok && !now.Before(exp)
}
