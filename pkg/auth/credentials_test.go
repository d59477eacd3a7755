package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const testCookie = "buvid3=abc; SESSDATA=0123456789abcdef%2C1700000000; bili_jct=fedcba"

func TestValidateCookie(t *testing.T) {
	assert.NoError(t, ValidateCookie(testCookie))
	assert.NoError(t, ValidateCookie("  "+testCookie+"  "))

	for _, bad := range []string{"", "   ", "buvid3=abc; bili_jct=x"} {
		err := ValidateCookie(bad)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "cookie %q", bad)
	}
}

func TestAccountCookieValue(t *testing.T) {
	acc := &Account{Cookie: testCookie}
	assert.Equal(t, "0123456789abcdef%2C1700000000", acc.CookieValue(SessionCookie))
	assert.Equal(t, "fedcba", acc.CookieValue("bili_jct"))
	assert.Empty(t, acc.CookieValue("DedeUserID"))
}

func TestCredentialManager(t *testing.T) {
	manager, store := newMemoryManager()

	account := &Account{Name: "main", Cookie: testCookie, UserAgent: "TestAgent/1.0"}
	require.NoError(t, manager.Store(account))
	assert.False(t, account.LastModified.IsZero())

	retrieved, err := manager.Retrieve("main")
	require.NoError(t, err)
	assert.Equal(t, account.Cookie, retrieved.Cookie)
	assert.Equal(t, "TestAgent/1.0", retrieved.UserAgent)

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, manager.Delete("main"))
	_, err = manager.Retrieve("main")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Equal(t, 0, store.count())

	assert.ErrorIs(t, manager.Delete("main"), ErrCredentialsNotFound)
}

func TestManagerRejectsInvalidCookie(t *testing.T) {
	manager, store := newMemoryManager()

	err := manager.Store(&Account{Name: "main", Cookie: "buvid3=abc"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Error(t, manager.Store(&Account{Cookie: testCookie}))
	assert.Equal(t, 0, store.count())
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := newMemoryStore()
	broken.storeErr = errors.New("keychain locked")
	working := newMemoryStore()

	manager := NewManagerWithStores(broken, working)
	require.NoError(t, manager.Store(&Account{Name: "main", Cookie: testCookie}))

	assert.Equal(t, 0, broken.count())
	assert.True(t, working.Exists("main"))
}

func TestManagerListNewestFirst(t *testing.T) {
	a, b := newMemoryStore(), newMemoryStore()
	old := time.Now().Add(-time.Hour)

	require.NoError(t, a.Store(&Account{Name: "old", Cookie: testCookie, LastModified: old}))
	require.NoError(t, a.Store(&Account{Name: "dup", Cookie: "stale", LastModified: old}))
	require.NoError(t, b.Store(&Account{Name: "dup", Cookie: "fresh", LastModified: time.Now()}))

	accounts, err := NewManagerWithStores(a, b).List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "dup", accounts[0].Name)
	assert.Equal(t, "fresh", accounts[0].Cookie)
	assert.Equal(t, "old", accounts[1].Name)
}

func TestRetrieveDefaultPrefersEnvironment(t *testing.T) {
	t.Setenv(EnvCookie, "")
	memory := newMemoryStore()
	manager := NewManagerWithStores(memory, NewEnvironmentStore())

	_, err := manager.RetrieveDefault()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, memory.Store(&Account{Name: "stored", Cookie: testCookie, LastModified: time.Now()}))
	account, err := manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "stored", account.Name)

	t.Setenv(EnvCookie, "SESSDATA=fromenv")
	account, err = manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "env", account.Name)
	assert.Equal(t, "SESSDATA=fromenv", account.Cookie)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "test_passphrase_123")
	require.NoError(t, err)

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	require.NoError(t, store.Store(&Account{Name: "b", Cookie: testCookie}))
	require.NoError(t, store.Store(&Account{Name: "a", Cookie: "SESSDATA=other"}))

	retrieved, err := store.Retrieve("b")
	require.NoError(t, err)
	assert.Equal(t, testCookie, retrieved.Cookie)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "0123456789abcdef")
	assert.NotContains(t, string(content), "SESSDATA")

	accounts, err = store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "a", accounts[0].Name)

	// a second store over the same file with the wrong passphrase cannot read it
	other, err := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	require.NoError(t, err)
	_, err = other.Retrieve("b")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Delete("a"))
	assert.False(t, store.Exists("a"))
	require.NoError(t, store.Delete("b"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = store.Retrieve("b")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStorePassphraseFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(EnvPassphrase, "from-env")

	path := filepath.Join(dir, "credentials.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Name: "main", Cookie: testCookie}))

	reopened, err := NewEncryptedFileStoreWithPassphrase(path, "from-env")
	require.NoError(t, err)
	assert.True(t, reopened.Exists("main"))
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(EnvCookie, testCookie)
	t.Setenv(EnvUserAgent, "EnvAgent/2.0")

	store := NewEnvironmentStore()
	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "env", account.Name)
	assert.Equal(t, testCookie, account.Cookie)
	assert.Equal(t, "EnvAgent/2.0", account.UserAgent)

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	assert.ErrorIs(t, store.Store(&Account{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("env"), ErrStoreUnavailable)

	t.Setenv(EnvCookie, "")
	_, err = store.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.False(t, store.Exists(""))
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(&Account{Name: "main", Cookie: testCookie}))
	require.NoError(t, store.Store(&Account{Name: "alt", Cookie: "SESSDATA=alt"}))
	assert.True(t, store.Exists("main"))

	accounts, err := store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alt", accounts[0].Name)

	require.NoError(t, store.Delete("alt"))
	assert.ErrorIs(t, store.Delete("alt"), ErrCredentialsNotFound)

	accounts, err = store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "main", accounts[0].Name)
}

func TestSanitizeAccount(t *testing.T) {
	account := &Account{Name: "main", Cookie: testCookie}
	sanitized := SanitizeAccount(account)

	assert.Equal(t, "main", sanitized.Name)
	assert.Equal(t, "0123...0000", sanitized.Cookie)
	assert.NotContains(t, sanitized.Cookie, "bili_jct")
	assert.Nil(t, SanitizeAccount(nil))
	assert.Equal(t, "********", maskString("short"))
}

func TestManagerListSkipsFailingStore(t *testing.T) {
	failing := newMemoryStore()
	failing.listErr = errors.New("keychain locked")
	working := newMemoryStore()
	require.NoError(t, working.Store(&Account{Name: "x", Cookie: testCookie}))

	accounts, err := NewManagerWithStores(failing, working).List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "x", accounts[0].Name)
}

func TestCookieGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowCookieExtractionGuide(&buf)
	assert.True(t, strings.Contains(buf.String(), SessionCookie))
	assert.Contains(t, buf.String(), EnvCookie)

	buf.Reset()
	ShowQuickGuide(&buf)
	assert.Contains(t, buf.String(), "bicodown auth login")
}
