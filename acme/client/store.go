package client

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cpu/acmekit/acme/keys"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// SavedAccount is the persisted form of an Account.
type SavedAccount struct {
	// The account URL.
	ID string `json:"id"`
	// The directory the account is registered with.
	DirectoryURL string   `json:"directory,omitempty"`
	Contact      []string `json:"contact,omitempty"`
	// The PEM encoded account key.
	PrivateKey string `json:"privateKey"`
}

// AccountStore persists accounts between sessions. The client never calls an
// AccountStore itself.
type AccountStore interface {
	Save(acct *Account) error
	Load() (*SavedAccount, error)
}

// FileAccountStore stores one account as a JSON file.
type FileAccountStore struct {
	Fs   afero.Fs
	Path string
}

// NewFileAccountStore returns a store for the file at path on the OS
// filesystem.
func NewFileAccountStore(path string) *FileAccountStore {
	return &FileAccountStore{Fs: afero.NewOsFs(), Path: path}
}

// Save persists the given Account object (which must not be nil) to the
// store's path. The file is only readable by its owner as it holds the account
// key.
func (s *FileAccountStore) Save(acct *Account) error {
	if acct == nil {
		return errors.New("account must not be nil")
	}
	keyPEM, err := acct.PrivateKeyPEM()
	if err != nil {
		return err
	}
	saved := SavedAccount{
		ID:           acct.ID(),
		DirectoryURL: acct.Directory().URL(),
		Contact:      acct.Contacts(),
		PrivateKey:   keyPEM,
	}
	frozenBytes, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := s.Fs.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrapf(err, "creating %q", dir)
		}
	}
	return errors.Wrapf(
		afero.WriteFile(s.Fs, s.Path, frozenBytes, 0o600),
		"saving account to %q", s.Path)
}

// Load reads a previously saved account. A missing file yields an error
// satisfying errors.Is(err, os.ErrNotExist).
func (s *FileAccountStore) Load() (*SavedAccount, error) {
	frozenBytes, err := afero.ReadFile(s.Fs, s.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading account from %q", s.Path)
	}
	var saved SavedAccount
	if err := json.Unmarshal(frozenBytes, &saved); err != nil {
		return nil, errors.Wrapf(err, "decoding account from %q", s.Path)
	}
	if saved.PrivateKey == "" {
		return nil, errors.Errorf("account in %q has no private key", s.Path)
	}
	return &saved, nil
}

// Exists reports whether an account has been saved.
func (s *FileAccountStore) Exists() bool {
	_, err := s.Fs.Stat(s.Path)
	return !errors.Is(err, os.ErrNotExist)
}

// Restore loads the account in store with the server, as Directory.Load does.
func (d *Directory) Restore(ctx context.Context, store AccountStore) (*Account, error) {
	saved, err := store.Load()
	if err != nil {
		return nil, err
	}
	signer, err := keys.SignerFromPEM([]byte(saved.PrivateKey))
	if err != nil {
		return nil, &CryptoError{Op: "restore account key", Err: err}
	}
	acct, err := d.Load(ctx, signer, saved.Contact)
	if err != nil {
		return nil, err
	}
	if saved.ID != "" && acct.ID() != saved.ID {
		d.client.log.Warn("restored account URL changed", "saved", saved.ID, "kid", acct.ID())
	}
	return acct, nil
}
