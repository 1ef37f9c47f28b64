package client

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"testing"

	"github.com/cpu/acmekit/acme"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)

	acct, err := dir.Register(context.Background(), newTestSigner(t),
		[]string{"admin@example.com", " ", "mailto:ops@example.com"}, nil)
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/account/1", acct.ID())
	assert.Equal(t, acme.StatusValid, acct.Status())
	assert.Equal(t, []string{"mailto:admin@example.com", "mailto:ops@example.com"}, acct.Contacts())
	assert.Equal(t, acct.ID(), acct.Identity().KeyID)
}

func TestRegisterInvalidContact(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)

	_, err := dir.Register(context.Background(), newTestSigner(t), []string{"not an email"}, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, srv.Count(http.MethodPost, "/new-account"))
}

func TestLoadIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)
	signer := newTestSigner(t)
	ctx := context.Background()

	first, err := dir.Load(ctx, signer, nil)
	require.NoError(t, err)
	second, err := dir.Load(ctx, signer, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())

	existing, err := dir.Register(ctx, signer, nil, &RegisterOptions{OnlyReturnExisting: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID(), existing.ID())

	other, err := dir.Load(ctx, newTestSigner(t), nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), other.ID())
}

func TestLoadPEM(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)

	keyPEM, err := acct.PrivateKeyPEM()
	require.NoError(t, err)

	loaded, err := dir.LoadPEM(context.Background(), []byte(keyPEM), nil)
	require.NoError(t, err)
	assert.Equal(t, acct.ID(), loaded.ID())

	_, err = dir.LoadPEM(context.Background(), []byte("garbage"), nil)
	var ce *CryptoError
	assert.ErrorAs(t, err, &ce)
}

func TestRegisterTermsOfService(t *testing.T) {
	srv := newTestServer(t)
	srv.TermsOfService = "https://example.com/tos.pdf"
	dir := newTestDirectory(t, srv)
	ctx := context.Background()

	_, err := dir.Register(ctx, newTestSigner(t), nil, &RegisterOptions{SkipTermsOfServiceAgreement: true})
	assert.True(t, IsProblem(err, acme.ProblemUserActionRequired))

	_, err = dir.Register(ctx, newTestSigner(t), nil, nil)
	assert.NoError(t, err)
}

func TestRegisterExternalAccountBinding(t *testing.T) {
	hmacKey := []byte("0123456789abcdef0123456789abcdef")
	srv := newTestServer(t)
	srv.EABKeys = map[string][]byte{"kid-1": hmacKey}
	dir := newTestDirectory(t, srv)
	ctx := context.Background()

	// Without a binding the server's problem reaches the caller.
	_, err := dir.Register(ctx, newTestSigner(t), nil, nil)
	var probErr *ProblemError
	require.ErrorAs(t, err, &probErr)
	assert.Equal(t, acme.ProblemExternalAccountRequired, probErr.Type)
	assert.Equal(t, http.StatusUnauthorized, probErr.HTTPStatus)
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/new-account"))

	eab, err := NewExternalAccountBinding("kid-1", base64.RawURLEncoding.EncodeToString(hmacKey))
	require.NoError(t, err)
	acct, err := dir.Register(ctx, newTestSigner(t), nil, &RegisterOptions{ExternalAccountBinding: eab})
	require.NoError(t, err)
	assert.Equal(t, acme.StatusValid, acct.Status())

	wrong := &ExternalAccountBinding{KeyID: "kid-1", HMACKey: []byte("fedcba9876543210fedcba9876543210")}
	_, err = dir.Register(ctx, newTestSigner(t), nil, &RegisterOptions{ExternalAccountBinding: wrong})
	assert.True(t, IsProblem(err, acme.ProblemExternalAccountRequired))
}

func TestUpdateContacts(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)
	ctx := context.Background()

	require.NoError(t, acct.UpdateContacts(ctx, []string{"new@example.com"}))
	assert.Equal(t, []string{"mailto:new@example.com"}, acct.Contacts())

	require.NoError(t, acct.UpdateContacts(ctx, nil))
	assert.Empty(t, acct.Contacts())

	require.NoError(t, acct.Refresh(ctx))
	assert.Empty(t, acct.Contacts())
}

func TestDeactivate(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)
	ctx := context.Background()

	require.NoError(t, acct.Deactivate(ctx))
	assert.Equal(t, acme.StatusDeactivated, acct.Status())

	// Rejected locally without contacting the server.
	posts := srv.Count(http.MethodPost, "/")
	_, err := acct.NewOrder(ctx, []string{"example.com"}, nil)
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, acme.StatusDeactivated, se.Status)
	assert.ErrorAs(t, acct.Deactivate(ctx), &se)
	assert.ErrorAs(t, acct.UpdateContacts(ctx, nil), &se)
	assert.Equal(t, posts, srv.Count(http.MethodPost, "/"))

	// The server refuses the account too.
	assert.True(t, IsProblem(acct.Refresh(ctx), acme.ProblemUnauthorized))
}

func TestChangeKey(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)
	ctx := context.Background()

	newSigner := newTestSigner(t)
	rolled, err := acct.ChangeKey(ctx, newSigner)
	require.NoError(t, err)
	assert.Equal(t, acct.ID(), rolled.ID())
	assert.Equal(t, newSigner, rolled.Signer())

	require.NoError(t, rolled.Refresh(ctx))
	assert.Error(t, acct.Refresh(ctx))

	// The new key now finds the same account.
	loaded, err := dir.Register(ctx, newSigner, nil, &RegisterOptions{OnlyReturnExisting: true})
	require.NoError(t, err)
	assert.Equal(t, acct.ID(), loaded.ID())
}

func TestChangeKeyToKeyInUse(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)
	other := newTestAccount(t, dir)

	_, err := acct.ChangeKey(context.Background(), other.Signer())
	var pe *ProblemError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusConflict, pe.HTTPStatus)
}

func TestFileAccountStore(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)

	store := &FileAccountStore{Fs: afero.NewMemMapFs(), Path: "/state/acme/account.json"}
	assert.False(t, store.Exists())
	_, err := store.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, store.Save(acct))
	assert.True(t, store.Exists())

	info, err := store.Fs.Stat(store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, acct.ID(), saved.ID)
	assert.Equal(t, srv.DirectoryURL(), saved.DirectoryURL)
	assert.Equal(t, []string{"mailto:admin@example.com"}, saved.Contact)

	restored, err := dir.Restore(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, acct.ID(), restored.ID())

	thumbA, err := acct.Thumbprint()
	require.NoError(t, err)
	thumbB, err := restored.Thumbprint()
	require.NoError(t, err)
	assert.Equal(t, thumbA, thumbB)
}

func TestFileAccountStoreRejectsKeylessFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "account.json", []byte(`{"id":"https://example.com/acct/1"}`), 0o600))

	store := &FileAccountStore{Fs: fs, Path: "account.json"}
	_, err := store.Load()
	assert.Error(t, err)
}
