package credentials

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandboxd/internal/domain"
)

// fakeNamespace records taken logins in memory.
type fakeNamespace struct {
	taken map[string]bool
	calls int
}

func (f *fakeNamespace) LoginExists(_ context.Context, login string) (bool, error) {
	f.calls++
	return f.taken[login], nil
}

func TestGeneratePassword_Composition(t *testing.T) {
	g := NewGenerator(&fakeNamespace{})

	for i := 0; i < 100; i++ {
		pw, err := g.GeneratePassword()
		require.NoError(t, err)
		require.Len(t, pw, PasswordLength)

		assert.True(t, strings.ContainsAny(pw, digits), "password %q has no digit", pw)
		assert.True(t, strings.ContainsAny(pw, uppercase), "password %q has no uppercase", pw)
		assert.True(t, strings.ContainsAny(pw, lowercase), "password %q has no lowercase", pw)
		assert.True(t, strings.ContainsAny(pw, symbols), "password %q has no symbol", pw)
		for _, r := range pw {
			assert.True(t, strings.ContainsRune(alphabet, r), "password %q has a character outside the alphabet", pw)
		}
	}
}

func TestGeneratePassword_NoDuplicates(t *testing.T) {
	g := NewGenerator(&fakeNamespace{})

	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		pw, err := g.GeneratePassword()
		require.NoError(t, err)
		require.False(t, seen[pw], "duplicate password %q", pw)
		seen[pw] = true
	}
}

func TestGenerateLogin_Basic(t *testing.T) {
	g := NewGenerator(&fakeNamespace{taken: map[string]bool{}})

	login, err := g.GenerateLogin(context.Background(), domain.Person{
		Surname: "Ivanov", GivenName: "Pyotr",
	}, "ev1")
	require.NoError(t, err)
	assert.Equal(t, "ivanovpev1", login)
}

func TestGenerateLogin_Transliteration(t *testing.T) {
	g := NewGenerator(&fakeNamespace{taken: map[string]bool{}})

	login, err := g.GenerateLogin(context.Background(), domain.Person{
		Surname: "Щербаков", GivenName: "Юрий",
	}, "m2")
	require.NoError(t, err)
	assert.Equal(t, "shcherbakovym2", login)

	login, err = g.GenerateLogin(context.Background(), domain.Person{
		Surname: "Müller", GivenName: "Éva",
	}, "m2")
	require.NoError(t, err)
	assert.Equal(t, "mullerem2", login)
}

func TestGenerateLogin_CollisionSuffix(t *testing.T) {
	// Two participants sharing surname and initial: the second gets a
	// numeric suffix.
	ns := &fakeNamespace{taken: map[string]bool{"ivanovpev1": true}}
	g := NewGenerator(ns)

	login, err := g.GenerateLogin(context.Background(), domain.Person{
		Surname: "Ivanov", GivenName: "Pavel",
	}, "ev1")
	require.NoError(t, err)
	assert.Equal(t, "ivanovpev11", login)
}

func TestGenerateLogin_TimestampFallback(t *testing.T) {
	// Every numbered candidate is taken; the generator must still terminate
	// with a timestamp-suffixed login.
	ns := &fakeNamespace{taken: map[string]bool{}}
	g := NewGenerator(ns)

	ns.taken["ivanovpev1"] = true
	for i := 1; i < maxLoginAttempts; i++ {
		ns.taken["ivanovpev1"+strconv.Itoa(i)] = true
	}

	login, err := g.GenerateLogin(context.Background(), domain.Person{
		Surname: "Ivanov", GivenName: "Pyotr",
	}, "ev1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(login, "ivanovpev1"))
	assert.Greater(t, len(login), len("ivanovpev1")+8, "fallback login %q should carry a timestamp suffix", login)
	assert.Equal(t, maxLoginAttempts, ns.calls)
}

func TestLatinize_DropsNonIdentifierRunes(t *testing.T) {
	assert.Equal(t, "oconnor", Latinize("O'Connor"))
	assert.Equal(t, "user42", Latinize(" User 42 "))
	assert.Equal(t, "", Latinize("***"))
}
