package services

import (
	"regexp"
	"strings"
)

const roomSeparator = "_"

// Participant IDs exclude the separator so every key splits back unambiguously.
var participantIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// ValidParticipantID reports whether id may take part in a room.
func ValidParticipantID(id string) bool {
	return participantIDPattern.MatchString(id)
}

// RoomKey identifies the conversation between two distinct participants. The
// pair is stored in lexicographic order, so NewRoomKey(a, b) == NewRoomKey(b, a).
type RoomKey struct {
	low, high string
}

func NewRoomKey(a, b string) (RoomKey, error) {
	if !ValidParticipantID(a) || !ValidParticipantID(b) || a == b {
		return RoomKey{}, ErrInvalidParticipant
	}
	if a > b {
		a, b = b, a
	}
	return RoomKey{low: a, high: b}, nil
}

// ParseRoomKey accepts "<a>_<b>" in either order and returns the canonical key.
func ParseRoomKey(s string) (RoomKey, error) {
	a, b, ok := strings.Cut(s, roomSeparator)
	if !ok {
		return RoomKey{}, ErrInvalidRoom
	}
	key, err := NewRoomKey(a, b)
	if err != nil {
		return RoomKey{}, ErrInvalidRoom
	}
	return key, nil
}

func (k RoomKey) String() string {
	return k.low + roomSeparator + k.high
}

func (k RoomKey) IsZero() bool {
	return k.low == "" && k.high == ""
}

func (k RoomKey) Participants() (string, string) {
	return k.low, k.high
}

func (k RoomKey) Has(id string) bool {
	return id == k.low || id == k.high
}

// Other returns the participant that is not id.
func (k RoomKey) Other(id string) (string, bool) {
	switch id {
	case k.low:
		return k.high, true
	case k.high:
		return k.low, true
	}
	return "", false
}
