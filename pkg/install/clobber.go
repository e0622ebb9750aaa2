package install

import (
	"strings"

	"github.com/matzehuels/psresget/pkg/descriptor"
	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/inventory"
)

// checkClobber fails when c would export a command that an installed package
// other than c's own id already exports.
func checkClobber(inv *inventory.Inventory, c feed.Candidate) error {
	conflicts := inv.Conflicts(c.ID, descriptor.ExportedCommands(c.Tags))
	if len(conflicts) == 0 {
		return nil
	}
	return perrors.New(perrors.ErrCodeCommandClobber,
		"commands already available on this system: %s", strings.Join(conflicts, ", ")).
		WithPackage(c.ID).WithRepository(c.Repository.URL)
}
