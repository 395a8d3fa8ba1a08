package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phobologic/igen/internal/build"
	"github.com/phobologic/igen/internal/collect"
	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/graph"
	"github.com/phobologic/igen/internal/logger"
	"github.com/phobologic/igen/internal/model"
	"github.com/phobologic/igen/internal/render"
	"github.com/phobologic/igen/internal/toon"
	"github.com/phobologic/igen/internal/watch"
)

// addBuildFlags registers the flags shared by build and watch. Their
// values reach the engine through the config layer.
func addBuildFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("force", false, "rewrite every interface (env IGEN_FORCE)")
	f.Bool("check", false, "check every interface regardless of modification times (env IGEN_CHECK)")
	f.Bool("debug", false, "log the signatures found per interface (env IGEN_DEBUG)")
	f.Int("jobs", 0, "parallel workers (default GOMAXPROCS)")
	f.String("manifest", "", "manifest path (default <tmp_dir>/igen_users)")
	f.String("cache", "", "build cache path (default <tmp_dir>/igen_cache)")
	f.String("template", "", "interface template (default embedded)")
	f.String("doc-dir", "", "doc link directory")
}

func (a *app) collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Scan source groups and write the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, groups, err := a.collect()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "manifest: %s\ngroups: %d\ninterfaces: %d\n",
				a.cfg.ManifestPath(), len(groups), len(entries))
			return nil
		},
	}
	cmd.Flags().String("manifest", "", "manifest path (default <tmp_dir>/igen_users)")
	cmd.Flags().Int("jobs", 0, "parallel workers (default GOMAXPROCS)")
	return cmd
}

// collect scans the configured groups and writes the manifest. It returns
// the entries and the groups that were scanned.
func (a *app) collect() ([]model.ManifestEntry, []*collect.Group, error) {
	c := collect.New(a.cfg.CollectOptions())
	entries, err := c.Collect()
	if err != nil {
		return nil, nil, err
	}
	if n := len(c.Errors()); n > 0 {
		logger.Warnw("files skipped while collecting", "count", n)
	}
	if err := collect.WriteManifest(a.cfg.ManifestPath(), entries); err != nil {
		return nil, nil, err
	}
	logger.Infow("wrote manifest", "path", a.cfg.ManifestPath(), "groups", len(c.Groups()), "interfaces", len(entries))
	return entries, c.Groups(), nil
}

func (a *app) buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [-- front-end flags]",
		Short: "Regenerate stale interfaces listed in the manifest",
		Long: `Regenerate every interface whose header or sources changed since its last
check. Arguments after -- are front-end flags such as -I and -D; -MMD and
-MP are dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := collect.ReadManifest(a.cfg.ManifestPath())
			if err != nil {
				return errors.WithHint(err, "run `igen collect` first")
			}
			report, err := a.build(entries, args)
			if err != nil || report == nil {
				return err
			}
			_, _ = fmt.Fprintln(a.stdout, toon.EncodeReport(a.cfg.ManifestPath(), report))
			if failed := report.Failed(); len(failed) > 0 {
				return errors.Newf("%d of %d interfaces failed", len(failed), len(report.Results))
			}
			return nil
		},
	}
	addBuildFlags(cmd)
	return cmd
}

// build runs the engine over entries and saves the new build cache. A nil
// report means there was nothing to build.
func (a *app) build(entries []model.ManifestEntry, extra []string) (*build.Report, error) {
	if len(entries) == 0 {
		logger.Infow("note: no igen users")
		return nil, nil
	}

	flags, err := a.cfg.FrontendFlags(extra)
	if err != nil {
		return nil, err
	}
	tmpl, err := render.NewTemplate(a.cfg.Template)
	if err != nil {
		return nil, err
	}

	record, err := build.LoadRecord(a.cfg.CachePath())
	if err != nil {
		logger.Warnw("ignoring build cache", "error", err)
	}

	engine := build.NewEngine(build.Options{
		Force:           a.cfg.Force,
		Check:           a.cfg.Check,
		Debug:           a.cfg.Debug,
		ParserFlags:     flags,
		PassAnnotations: a.cfg.PassAnnotations,
		DocDir:          a.cfg.DocDir,
		SourceBasepath:  a.cfg.SourceBasepath,
		Jobs:            a.cfg.Jobs,
	}, tmpl)

	report, next := engine.Run(entries, record)
	if err := next.Save(a.cfg.CachePath()); err != nil {
		return nil, err
	}
	return report, nil
}

func (a *app) watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [-- front-end flags]",
		Short: "Collect and build, then rebuild whenever sources change",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, args)
		},
	}
	addBuildFlags(cmd)
	return cmd
}

func (a *app) watch(ctx context.Context, extra []string) error {
	cycle := func() (*graph.Index, error) {
		entries, _, err := a.collect()
		if err != nil {
			return nil, err
		}
		report, err := a.build(entries, extra)
		if err != nil {
			return nil, err
		}
		if report != nil {
			_, _ = fmt.Fprintln(a.stdout, toon.EncodeReport(a.cfg.ManifestPath(), report))
		}
		return graph.BuildIndex(entries), nil
	}

	idx, err := cycle()
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(a.cfg.Groups))
	for _, g := range a.cfg.Groups {
		dirs = append(dirs, g.Path)
	}
	w, err := watch.New(watch.Options{
		Paths:      idx.Tracked(),
		Dirs:       dirs,
		Extensions: append(append([]string(nil), a.cfg.Extensions...), a.cfg.PrimaryExtension),
		Ignore:     a.cfg.Ignore,
		Generated:  func(p string) bool { return idx.IsGenerated(p) },
	})
	if err != nil {
		return err
	}

	logger.Infow("watching for changes", "files", len(idx.Tracked()))
	return w.Run(ctx, func(changed []string) {
		for _, path := range changed {
			logger.Infow("changed", "path", path, "affects", idx.Affected(path))
		}
		next, err := cycle()
		if err != nil {
			logger.Errorw("rebuild failed", "error", err)
			return
		}
		idx = next
		w.Track(idx.Tracked()...)
	})
}

func (a *app) depsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps [file...]",
		Short: "Print which files feed which generated interfaces",
		Long: `Print the dependency index built from the manifest. With file arguments,
print the generated interfaces each file affects instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := collect.ReadManifest(a.cfg.ManifestPath())
			if err != nil {
				return errors.WithHint(err, "run `igen collect` first")
			}
			idx := graph.BuildIndex(entries)
			if len(args) == 0 {
				_, _ = fmt.Fprintln(a.stdout, toon.EncodeDeps(idx))
				return nil
			}
			for _, path := range args {
				for _, gen := range idx.Affected(path) {
					_, _ = fmt.Fprintf(a.stdout, "%s\t%s\n", path, gen)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("manifest", "", "manifest path (default <tmp_dir>/igen_users)")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(out)
			return err
		},
	}
}
