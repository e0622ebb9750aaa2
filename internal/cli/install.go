package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/psresget/internal/config"
	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/install"
	"github.com/matzehuels/psresget/pkg/manifest"
)

// installOpts holds the flags shared by install, update and plan.
type installOpts struct {
	version       string
	prerelease    bool
	repositories  []string
	scope         string
	acceptLicense bool
	quiet         bool
	reinstall     bool
	force         bool
	trust         bool
	noClobber     bool
	manifest      string
	refresh       bool
	noCache       bool
}

func (o *installOpts) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.version, "version", "", "version or NuGet range (a bare version is exact)")
	f.BoolVar(&o.prerelease, "prerelease", false, "consider prerelease versions")
	f.StringSliceVarP(&o.repositories, "repository", "r", nil, "repositories to try, in order (default: all by priority)")
	f.StringVar(&o.scope, "scope", "", "CurrentUser or AllUsers (default from config)")
	f.BoolVar(&o.acceptLicense, "accept-license", false, "accept license agreements without prompting")
	f.BoolVar(&o.quiet, "quiet", false, "suppress progress output")
	f.BoolVar(&o.reinstall, "reinstall", false, "install even if a satisfying version is present")
	f.BoolVar(&o.force, "force", false, "reinstall and skip the untrusted repository prompt")
	f.BoolVar(&o.trust, "trust-repository", false, "treat every repository as trusted")
	f.BoolVar(&o.noClobber, "no-clobber", false, "fail if a package exports commands another package already exports")
	f.BoolVar(&o.refresh, "refresh", false, "bypass cached feed listings")
	f.BoolVar(&o.noCache, "no-cache", false, "disable the feed metadata cache")
}

// options converts flags into engine options for cfg.
func (o *installOpts) options(cfg *config.Config) (install.Options, error) {
	scope := o.scope
	if scope == "" {
		scope = cfg.Scope
	}
	s, err := config.ParseScope(scope)
	if err != nil {
		return install.Options{}, err
	}
	return install.Options{
		Layout:          cfg.Layout(s),
		Prerelease:      o.prerelease,
		AcceptLicense:   o.acceptLicense,
		Quiet:           o.quiet,
		Reinstall:       o.reinstall,
		Force:           o.force,
		TrustRepository: o.trust,
		NoClobber:       o.noClobber,
		Workers:         cfg.Workers,
		StagingRoot:     cfg.Staging,
	}, nil
}

// batch is one selector call: requests sharing repositories and options.
type batch struct {
	reqs       []install.Request
	repos      []string
	credential string
	opts       install.Options
}

// batches builds the selector calls for args or, with --manifest, for each
// manifest group.
func (o *installOpts) batches(cfg *config.Config, args []string) ([]batch, error) {
	base, err := o.options(cfg)
	if err != nil {
		return nil, err
	}
	if o.manifest == "" {
		if len(args) == 0 {
			return nil, perrors.New(perrors.ErrCodeInvalidInput, "no package names given")
		}
		return []batch{{
			reqs:  install.Requests(args, o.version, o.prerelease),
			repos: o.repositories,
			opts:  base,
		}}, nil
	}

	if len(args) > 0 {
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "package names cannot be combined with --manifest")
	}
	m, err := manifest.Load(o.manifest)
	if err != nil {
		return nil, err
	}
	var out []batch
	for _, group := range m.Groups() {
		first := group[0]
		opts := first.Apply(base)
		if first.Scope != "" {
			s, err := config.ParseScope(first.Scope)
			if err != nil {
				return nil, perrors.Wrap(perrors.ErrCodeManifestFormat, err, "resource %q", first.Name)
			}
			opts.Layout = cfg.Layout(s)
		}
		repos := o.repositories
		if first.Repository != "" {
			repos = []string{first.Repository}
		}
		reqs := make([]install.Request, 0, len(group))
		for _, r := range group {
			req := r.Request()
			req.Prerelease = req.Prerelease || o.prerelease
			reqs = append(reqs, req)
		}
		out = append(out, batch{reqs: reqs, repos: repos, credential: first.Credential, opts: opts})
	}
	return out, nil
}

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var opts installOpts
	cmd := &cobra.Command{
		Use:   "install [name...]",
		Short: "Install packages and their dependencies",
		Long: `Install resolves each name against the registered repositories in priority
order, falling back to the next repository for anything the previous one did
not have. Dependencies already satisfied in the local store are skipped.

Examples:
  psresget install Pester
  psresget install Pester --version "[5.0,6.0)"
  psresget install PSReadLine --prerelease -r PSGallery
  psresget install --manifest requirements.psd.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd.Context(), &opts, args, false)
		},
	}
	opts.register(cmd)
	c.registerRepositoryCompletion(cmd)
	cmd.Flags().StringVarP(&opts.manifest, "manifest", "m", "", "required-resource file (JSON, TOML or YAML)")
	return cmd
}

// updateCommand creates the update command.
func (c *CLI) updateCommand() *cobra.Command {
	var opts installOpts
	cmd := &cobra.Command{
		Use:   "update <name...>",
		Short: "Update installed packages to the newest matching version",
		Long: `Update replaces installed packages with the newest version matching
--version. Updating a package that is not installed is an error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd.Context(), &opts, args, true)
		},
	}
	opts.register(cmd)
	c.registerRepositoryCompletion(cmd)
	return cmd
}

func (c *CLI) runInstall(ctx context.Context, o *installOpts, args []string, update bool) error {
	e, err := c.env(ctx, o.noCache)
	if err != nil {
		return err
	}
	defer e.Close()

	batches, err := o.batches(e.cfg, args)
	if err != nil {
		return err
	}

	sel := e.selector(o.refresh)
	var missing []install.Request
	for _, b := range batches {
		repos, err := e.repositories(ctx, b.repos, b.credential)
		if err != nil {
			return err
		}
		b.opts.Update = update

		prog := newProgress(e.logger)
		res, err := sel.Install(ctx, b.reqs, repos, b.opts)
		reportInstall(res)
		if err != nil {
			return err
		}
		prog.done("Install finished")
		missing = append(missing, res.NotFound...)
	}

	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, r := range missing {
			names[i] = r.String()
		}
		return perrors.New(perrors.ErrCodePackageNotFound, "not found in any repository: %s", strings.Join(names, ", "))
	}
	return nil
}

func reportInstall(res install.Result) {
	for _, in := range res.Installed {
		printInstalled(in)
	}
	for _, id := range res.AlreadyInstalled {
		printInfo("%s is already installed", id)
	}
	for _, name := range res.Skipped {
		printWarning("Skipped untrusted repository %s", name)
	}
}

func errNoCredential(name string) error {
	return perrors.New(perrors.ErrCodeInvalidInput, "no stored credential named %q", name).WithRepository(name)
}
