// Package credentials derives unique logins and strong random passwords for
// participant accounts.
package credentials

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"sandboxd/internal/domain"
)

// PasswordLength is the fixed length of generated passwords.
const PasswordLength = 12

// maxLoginAttempts bounds collision retries before falling back to a
// timestamp suffix, which guarantees termination.
const maxLoginAttempts = 20

const (
	digits    = "0123456789"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	symbols   = "!@#$%^&*-_+="
	alphabet  = digits + uppercase + lowercase + symbols
)

// loginNamespace is the slice of the account store the generator needs for
// collision checks.
type loginNamespace interface {
	LoginExists(ctx context.Context, login string) (bool, error)
}

// Generator produces logins and passwords. Randomness comes from
// crypto/rand throughout.
type Generator struct {
	accounts loginNamespace
}

// NewGenerator creates a Generator backed by the given login namespace.
func NewGenerator(accounts loginNamespace) *Generator {
	return &Generator{accounts: accounts}
}

// GenerateLogin derives a unique login for a person within a scope (e.g. an
// event code): transliterated surname + given-name initial + scope, with an
// incrementing numeric suffix on collision. After maxLoginAttempts the
// candidate gets a timestamp suffix instead, which cannot collide with
// earlier fallbacks of the same base.
func (g *Generator) GenerateLogin(ctx context.Context, person domain.Person, scope string) (string, error) {
	base := Latinize(person.Surname)
	if initial := Latinize(person.GivenName); initial != "" {
		base += initial[:1]
	}
	if base == "" {
		base = "user"
	}
	base += Latinize(scope)

	for attempt := 0; attempt < maxLoginAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate += strconv.Itoa(attempt)
		}
		taken, err := g.accounts.LoginExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check login %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return fmt.Sprintf("%s%d", base, time.Now().UnixNano()), nil
}

// GeneratePassword returns a password of PasswordLength characters containing
// at least one digit, one uppercase letter, one lowercase letter, and one
// symbol. The remaining characters are drawn uniformly from the full
// alphabet, then the whole password is shuffled so character-class positions
// are not predictable.
func (g *Generator) GeneratePassword() (string, error) {
	buf := make([]byte, 0, PasswordLength)

	for _, class := range []string{digits, uppercase, lowercase, symbols} {
		c, err := randomByte(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < PasswordLength {
		c, err := randomByte(alphabet)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	if err := shuffle(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func randomByte(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return set[n.Int64()], nil
}

// shuffle performs a Fisher-Yates shuffle using crypto/rand.
func shuffle(buf []byte) error {
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("read random: %w", err)
		}
		j := n.Int64()
		buf[i], buf[j] = buf[j], buf[i]
	}
	return nil
}
