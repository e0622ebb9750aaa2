package install

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/psresget/pkg/descriptor"
	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
)

// promotion moves staged files and directories into the store. Every replace
// first lands the new content next to its destination, then swaps it in with
// a rename, keeping the previous content as a backup until commit. rollback
// restores all backups.
type promotion struct {
	done []swap
}

// rename is swapped in tests to inject failures.
var rename = os.Rename

type swap struct {
	dst    string
	backup string // empty when dst did not exist
}

// replace puts src at dst, replacing whatever dst was.
func (p *promotion) replace(src, dst string) error {
	parent := filepath.Dir(dst)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}

	tag := uuid.NewString()[:8]
	incoming := filepath.Join(parent, "."+filepath.Base(dst)+".new-"+tag)
	if err := place(src, incoming); err != nil {
		os.RemoveAll(incoming)
		return err
	}

	s := swap{dst: dst}
	if _, err := os.Lstat(dst); err == nil {
		s.backup = filepath.Join(parent, "."+filepath.Base(dst)+".old-"+tag)
		if err := rename(dst, s.backup); err != nil {
			os.RemoveAll(incoming)
			return fmt.Errorf("back up %s: %w", dst, err)
		}
	}
	if err := rename(incoming, dst); err != nil {
		os.RemoveAll(incoming)
		err = fmt.Errorf("move into %s: %w", dst, err)
		if s.backup != "" {
			if rerr := rename(s.backup, dst); rerr != nil {
				err = errors.Join(err, fmt.Errorf("restore %s: previous content left at %s: %w", dst, s.backup, rerr))
			}
		}
		return err
	}
	p.done = append(p.done, s)
	return nil
}

// rollback undoes every completed replace, newest first. Backups that could
// not be restored are named in the returned error.
func (p *promotion) rollback() error {
	var errs []error
	for i := len(p.done) - 1; i >= 0; i-- {
		s := p.done[i]
		if err := os.RemoveAll(s.dst); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", s.dst, err))
		}
		if s.backup != "" {
			if err := rename(s.backup, s.dst); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: previous content left at %s: %w", s.dst, s.backup, err))
			}
		}
	}
	p.done = nil
	return errors.Join(errs...)
}

// abort rolls p back and joins any rollback failure onto err.
func (p *promotion) abort(err error) error {
	if rerr := p.rollback(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

// commit drops the backups.
func (p *promotion) commit() {
	for _, s := range p.done {
		if s.backup != "" {
			os.RemoveAll(s.backup)
		}
	}
	p.done = nil
}

// place moves src to dst, copying when a rename is not possible (for example
// across filesystems).
func place(src, dst string) error {
	if err := rename(src, dst); err == nil {
		return nil
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyTree(src, dst)
	}
	return copyFile(src, dst, info.Mode())
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// moduleDir returns <root>/<Id>/<version>, reusing an existing id directory
// whose name differs only in case.
func moduleDir(root string, c feed.Candidate) string {
	name := c.ID
	if entries, err := os.ReadDir(root); err == nil {
		for _, e := range entries {
			if e.IsDir() && strings.EqualFold(e.Name(), c.ID) {
				name = e.Name()
				break
			}
		}
	}
	return filepath.Join(root, name, c.Version.String())
}

// promoteModule moves a staged module version directory into the store.
func promoteModule(staged string, layout Layout, c feed.Candidate) (string, error) {
	dst := moduleDir(layout.ModuleRoot, c)
	var p promotion
	if err := p.replace(staged, dst); err != nil {
		return "", p.abort(err)
	}
	p.commit()
	return dst, nil
}

// promoteScript moves a staged script and its descriptor into the store.
// Either both land or neither does.
func promoteScript(staged string, layout Layout, c feed.Candidate) (string, error) {
	script, err := stagedScript(staged, c)
	if err != nil {
		return "", err
	}
	descName := descriptor.FileName(descriptor.Script, c.ID)
	dst := filepath.Join(layout.ScriptRoot, c.ID+".ps1")

	var p promotion
	if err := p.replace(script, dst); err != nil {
		return "", p.abort(err)
	}
	if err := p.replace(filepath.Join(staged, descName), filepath.Join(layout.ScriptInfoDir(), descName)); err != nil {
		return "", p.abort(err)
	}
	p.commit()
	return dst, nil
}

// stagedScript finds <Id>.ps1 in a staged script payload.
func stagedScript(staged string, c feed.Candidate) (string, error) {
	entries, err := os.ReadDir(staged)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), c.ID+".ps1") {
			return filepath.Join(staged, e.Name()), nil
		}
	}
	return "", perrors.New(perrors.ErrCodeInvalidPackage, "script package has no %s.ps1", c.ID).
		WithPackage(c.ID).WithRepository(c.Repository.URL)
}
