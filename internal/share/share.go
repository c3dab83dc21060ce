// Package share owns the lifecycle of public chat links and the gate that
// decides whether a viewer may read a shared chat.
package share

import (
	"errors"

	"github.com/lalith-99/aipdfly/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound          = errors.New("share not found")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrAlreadyShared     = errors.New("chat already shared")
	ErrNotShared         = errors.New("chat is not shared")
	ErrPasswordTooLong   = errors.New("share password longer than 72 bytes")
)

// MaxPasswordBytes is the longest password bcrypt accepts. It counts bytes,
// so a multibyte password reaches it in fewer characters.
const MaxPasswordBytes = 72

// State is where a chat sits in the share lifecycle:
//
//	None -> Public <-> Protected -> None
type State int

const (
	StateNone State = iota
	StatePublic
	StateProtected
)

func (s State) String() string {
	switch s {
	case StatePublic:
		return "public"
	case StateProtected:
		return "protected"
	default:
		return "none"
	}
}

// StateOf derives the lifecycle state from a chat's share rows.
func StateOf(shares []models.Share) State {
	if len(shares) == 0 {
		return StateNone
	}
	if shares[0].Protected() {
		return StateProtected
	}
	return StatePublic
}

// Hasher turns share passwords into stored digests and checks candidates
// against them.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, candidate string) bool
}

// BcryptHasher hashes with bcrypt at Cost, or bcrypt.DefaultCost when Cost
// is zero.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
