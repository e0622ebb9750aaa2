package install

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/host"
)

// LicenseFile is the file a package requiring license acceptance must ship
// at the root of its payload. The name matches case-insensitively.
const LicenseFile = "License.txt"

// findLicense returns the path of the license file in payload.
func findLicense(payload string) (string, bool) {
	entries, err := os.ReadDir(payload)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), LicenseFile) {
			return filepath.Join(payload, e.Name()), true
		}
	}
	return "", false
}

// licenseGate asks for license acceptance at most once per package, and not
// at all after a "yes to all".
type licenseGate struct {
	host     host.Host
	accepted bool // AcceptLicense or a prior YesToAll
}

// check enforces c's license requirement against its staged payload.
func (g *licenseGate) check(c feed.Candidate, payload string) error {
	if !c.RequireLicenseAcceptance {
		return nil
	}
	path, ok := findLicense(payload)
	if !ok {
		return perrors.New(perrors.ErrCodeLicenseTextNotFound,
			"package requires license acceptance but ships no %s", LicenseFile).
			WithPackage(c.ID).WithRepository(c.Repository.URL)
	}
	if g.accepted {
		return nil
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeLicenseTextNotFound, err, "read license").WithPackage(c.ID)
	}

	msg := fmt.Sprintf("%s\n\nDo you accept the license terms for package '%s'?", strings.TrimSpace(string(text)), c.ID)
	answer := g.host.Confirm(msg, "License Acceptance")
	if answer.Sticky() {
		g.accepted = answer.Accepted()
	}
	if !answer.Accepted() {
		return perrors.New(perrors.ErrCodeLicenseNotAccepted, "license terms were not accepted").
			WithPackage(c.ID).WithRepository(c.Repository.URL)
	}
	return nil
}
