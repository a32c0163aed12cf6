package captcha

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Gate errors.
var (
	ErrUnknownChallenge  = errors.New("unknown or expired captcha")
	ErrMismatch          = errors.New("captcha text does not match")
	ErrAlreadySolved     = errors.New("captcha already solved")
	ErrTooManyChallenges = errors.New("too many open captchas")
)

// DefaultTTL is how long an issued challenge stays answerable.
const DefaultTTL = 10 * time.Minute

// DefaultLimit caps the challenges a gate holds at once.
const DefaultLimit = 10000

type entry struct {
	challenge *Challenge
	expires   time.Time
}

// Gate keeps the challenges handed out to clients so that their answers
// and tokens can be checked server side.
type Gate struct {
	mu         sync.Mutex
	challenges map[string]*entry
	ttl        time.Duration
	limit      int
	now        func() time.Time
}

// NewGate returns an empty gate holding at most limit unexpired
// challenges. Zero values use DefaultTTL and DefaultLimit.
func NewGate(ttl time.Duration, limit int) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Gate{
		challenges: make(map[string]*entry),
		ttl:        ttl,
		limit:      limit,
		now:        time.Now,
	}
}

// Issue creates a challenge and returns its ID and text. It returns
// ErrTooManyChallenges while the gate is full.
func (g *Gate) Issue() (id, text string, err error) {
	c, err := NewChallenge(nil)
	if err != nil {
		return "", "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)
	if len(g.challenges) >= g.limit {
		return "", "", ErrTooManyChallenges
	}

	c.now = g.now
	id = uuid.NewString()
	g.challenges[id] = &entry{challenge: c, expires: now.Add(g.ttl)}
	return id, c.Text(), nil
}

// Refresh replaces the text of challenge id and extends its lifetime.
func (g *Gate) Refresh(id string) (text string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.lookup(id)
	if !ok {
		return "", ErrUnknownChallenge
	}
	if err := e.challenge.Refresh(); err != nil {
		return "", err
	}
	e.expires = g.now().Add(g.ttl)
	return e.challenge.Text(), nil
}

// Answer checks input against challenge id and returns the verification
// token on the first correct answer.
func (g *Gate) Answer(id, input string) (token string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.lookup(id)
	if !ok {
		return "", ErrUnknownChallenge
	}
	if e.challenge.State() == Solved {
		return "", ErrAlreadySolved
	}

	token, emitted := e.challenge.Enter(input)
	if !emitted {
		return "", ErrMismatch
	}
	return token, nil
}

// Redeem reports whether token was issued for challenge id. A challenge can
// be redeemed once; it is forgotten afterwards whatever the outcome.
func (g *Gate) Redeem(id, token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.lookup(id)
	if !ok {
		return false
	}
	delete(g.challenges, id)

	return e.challenge.State() == Solved && token != "" && e.challenge.Token() == token
}

// Len returns the number of live challenges.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.now())
	return len(g.challenges)
}

func (g *Gate) lookup(id string) (*entry, bool) {
	e, ok := g.challenges[id]
	if !ok {
		return nil, false
	}
	if !g.now().Before(e.expires) {
		delete(g.challenges, id)
		return nil, false
	}
	return e, true
}

func (g *Gate) prune(now time.Time) {
	for id, e := range g.challenges {
		if !now.Before(e.expires) {
			delete(g.challenges, id)
		}
	}
}
