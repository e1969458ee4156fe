// Package acquire turns configured module sources into module definitions.
// Git sources are cloned into the cache directory (or fetched again when
// already there); local directories are used in place.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"rigz/pkg/config"
	"rigz/pkg/module"
)

type Acquirer struct {
	cacheDir string
	log      *slog.Logger
}

func New(cacheDir string, log *slog.Logger) *Acquirer {
	if log == nil {
		log = slog.Default()
	}
	return &Acquirer{cacheDir: cacheDir, log: log}
}

// All acquires mods in order.
func (a *Acquirer) All(ctx context.Context, mods []config.ModuleOptions) ([]module.Definition, error) {
	defs := make([]module.Definition, 0, len(mods))
	for _, m := range mods {
		def, err := a.Module(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire module %s: %w", m.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Module fetches one module and reads its manifest from SubFolder.
func (a *Acquirer) Module(ctx context.Context, m config.ModuleOptions) (module.Definition, error) {
	if m.Source == "" {
		return module.Definition{}, errors.New("module source is empty")
	}

	dir := m.Source
	if IsRemote(m.Source) {
		var err error
		if dir, err = a.checkout(ctx, m); err != nil {
			return module.Definition{}, err
		}
	} else {
		a.log.Info("Using local module", "module", m.Name, "path", dir)
	}

	def, err := config.LoadManifest(filepath.Join(dir, m.SubFolder))
	if err != nil {
		return module.Definition{}, err
	}
	return m.Apply(def), nil
}

// IsRemote reports whether source must be cloned rather than read in place.
func IsRemote(source string) bool {
	return strings.Contains(source, "://") || strings.HasPrefix(source, "git@")
}

// ClonePath is the directory name a source is cloned into: the last path
// segment without its .git suffix.
func ClonePath(source string) string {
	source = strings.TrimSuffix(strings.TrimRight(source, "/"), "/.git")
	if i := strings.LastIndex(source, ":"); i >= 0 && !strings.Contains(source, "://") {
		source = source[i+1:]
	}
	name := strings.TrimSuffix(path.Base(source), ".git")
	if name == "" || name == "." || name == "/" {
		return "module"
	}
	return name
}

func (a *Acquirer) checkout(ctx context.Context, m config.ModuleOptions) (string, error) {
	if err := os.MkdirAll(a.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", a.cacheDir, err)
	}
	dest := filepath.Join(a.cacheDir, ClonePath(m.Source))

	var (
		repo *git.Repository
		err  error
	)
	if _, statErr := os.Stat(dest); statErr == nil {
		a.log.Info("Using cached module", "module", m.Name, "path", dest)
		repo, err = a.update(ctx, dest, m)
	} else {
		a.log.Info("Cloning module", "module", m.Name, "source", m.Source)
		repo, err = git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{URL: m.Source, Tags: git.AllTags})
		if err != nil {
			_ = os.RemoveAll(dest)
			err = fmt.Errorf("git clone %s %s: %w", m.Source, dest, err)
		}
	}
	if err != nil {
		return "", err
	}

	if m.Version != "" {
		if err := checkoutVersion(repo, m.Version); err != nil {
			return "", err
		}
	}
	return dest, nil
}

// update fetches origin. A failed fetch is not fatal: the cached copy is
// still usable offline.
func (a *Acquirer) update(ctx context.Context, dest string, m config.ModuleOptions) (*git.Repository, error) {
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return nil, fmt.Errorf("open cached module %s: %w", dest, err)
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{RemoteName: git.DefaultRemoteName, Tags: git.AllTags})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	default:
		a.log.Warn("Fetch failed, using cached copy", "module", m.Name, "error", err)
		return repo, nil
	}

	if m.Version == "" {
		if changed, err := remoteChanged(repo); err == nil && changed {
			a.log.Warn("There are remote changes", "module", m.Name, "source", m.Source)
		}
	}
	return repo, nil
}

func remoteChanged(repo *git.Repository) (bool, error) {
	head, err := repo.Head()
	if err != nil {
		return false, err
	}
	if !head.Name().IsBranch() {
		return false, nil
	}
	remote, err := repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, head.Name().Short()), true)
	if err != nil {
		return false, err
	}
	return remote.Hash() != head.Hash(), nil
}

// checkoutVersion checks out a tag, a remote branch or a commit hash.
func checkoutVersion(repo *git.Repository, version string) error {
	var hash *plumbing.Hash
	for _, rev := range []string{
		"refs/tags/" + version,
		"refs/remotes/" + git.DefaultRemoteName + "/" + version,
		version,
	} {
		h, err := repo.ResolveRevision(plumbing.Revision(rev))
		if err == nil {
			hash = h
			break
		}
	}
	if hash == nil {
		return fmt.Errorf("version %s not found", version)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return fmt.Errorf("git checkout %s: %w", version, err)
	}
	return nil
}
