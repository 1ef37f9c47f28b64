package solver

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cpu/acmekit/acme/client"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// WebrootSolver answers http-01 challenges by writing the key authorization
// below the document root of a web server that already serves the
// identifier.
type WebrootSolver struct {
	Fs   afero.Fs
	Root string
}

// NewWebrootSolver returns a WebrootSolver writing below root on the OS
// filesystem.
func NewWebrootSolver(root string) *WebrootSolver {
	return &WebrootSolver{Fs: afero.NewOsFs(), Root: root}
}

func (s *WebrootSolver) path(c *client.HTTP01Challenge) string {
	return filepath.Join(s.Root, filepath.FromSlash(c.Path()))
}

func (s *WebrootSolver) Present(_ context.Context, chall client.Challenge) error {
	c, ok := chall.(*client.HTTP01Challenge)
	if !ok {
		return ErrUnsupported
	}
	keyAuth, err := c.Proof()
	if err != nil {
		return err
	}
	path := s.path(c)
	if err := s.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %q", filepath.Dir(path))
	}
	return errors.Wrapf(
		afero.WriteFile(s.Fs, path, []byte(keyAuth), 0o644),
		"writing %q", path)
}

func (s *WebrootSolver) CleanUp(_ context.Context, chall client.Challenge) error {
	c, ok := chall.(*client.HTTP01Challenge)
	if !ok {
		return ErrUnsupported
	}
	err := s.Fs.Remove(s.path(c))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
