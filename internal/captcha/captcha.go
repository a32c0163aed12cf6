// Package captcha implements a text challenge that must be solved before a
// login or registration form is accepted.
//
// The verification token is base64("verified_<unix millis>"). It is not
// cryptographically bound to the challenge it came from; Gate narrows this
// by only accepting a token once, for the challenge that produced it.
package captcha

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"time"
)

// Length is the number of characters in a challenge.
const Length = 6

// Alphabet excludes characters that are easy to confuse: 0/O and 1/l/I.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"

// State is the challenge state.
type State int

// Challenge states.
const (
	Unsolved State = iota
	Solved
)

func (s State) String() string {
	if s == Solved {
		return "solved"
	}
	return "unsolved"
}

// Challenge is a single captcha. It is not safe for concurrent use.
type Challenge struct {
	text  string
	input string
	state State
	token string
	rand  io.Reader
	now   func() time.Time
}

// NewChallenge generates a challenge using r as the randomness source.
// A nil r uses crypto/rand.
func NewChallenge(r io.Reader) (*Challenge, error) {
	if r == nil {
		r = rand.Reader
	}
	c := &Challenge{rand: r, now: time.Now}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

// Text returns the characters the user has to copy.
func (c *Challenge) Text() string { return c.text }

// Input returns the last entered text.
func (c *Challenge) Input() string { return c.input }

// State returns the current state.
func (c *Challenge) State() State { return c.state }

// Token returns the verification token, or "" while unsolved.
func (c *Challenge) Token() string { return c.token }

// Enter records user input. The first exact, case-sensitive match moves the
// challenge to Solved and returns the token with emitted set. Any later
// input, matching or not, emits nothing.
func (c *Challenge) Enter(input string) (token string, emitted bool) {
	c.input = input
	if c.state == Solved || input == "" || input != c.text {
		return "", false
	}

	c.state = Solved
	c.token = newToken(c.now())
	return c.token, true
}

// Refresh replaces the text with a new one, clears the input and returns
// the challenge to Unsolved. The new text always differs from the old.
func (c *Challenge) Refresh() error {
	for {
		text, err := generate(c.rand)
		if err != nil {
			return err
		}
		if text != c.text {
			c.text = text
			break
		}
	}
	c.input = ""
	c.state = Unsolved
	c.token = ""
	return nil
}

func generate(r io.Reader) (string, error) {
	size := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, Length)
	for i := range buf {
		n, err := rand.Int(r, size)
		if err != nil {
			return "", fmt.Errorf("generating captcha: %w", err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}

func newToken(t time.Time) string {
	return base64.StdEncoding.EncodeToString(fmt.Appendf(nil, "verified_%d", t.UnixMilli()))
}
