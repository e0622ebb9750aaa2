package install

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/psresget/pkg/feed"
)

// staging is the temporary working area of one InstallPkgs call.
type staging struct {
	dir string
}

func newStaging(root string) (*staging, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "psresget-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &staging{dir: dir}, nil
}

// payloadDir is where c is downloaded to: <staging>/<id>/<version>.
func (s *staging) payloadDir(c feed.Candidate) string {
	return filepath.Join(s.dir, strings.ToLower(c.ID), c.Version.String())
}

// Close removes the staging directory and anything left in it.
func (s *staging) Close() error {
	return os.RemoveAll(s.dir)
}
