package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/igen/internal/errors"
)

const (
	sentinelStart = "# igen:start"
	sentinelEnd   = "# igen:end"
)

// initCmd implements `igen init`, which writes (or updates) a starter
// configuration block in igen.yaml.
func (a *app) initCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter igen.yaml",
		Long: `Write a starter configuration block to igen.yaml. The block is wrapped in
sentinel comments so it can be updated in place on subsequent runs without
touching surrounding settings. Creates the file if it does not exist.

path defaults to the --config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section := generateSection()

			// --dry-run with no path: just print the section itself.
			if dryRun && len(args) == 0 {
				_, _ = fmt.Fprintln(a.stdout, section)
				return nil
			}

			path := a.configPath
			if len(args) > 0 {
				path = args[0]
			}

			existing, err := os.ReadFile(path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return errors.Wrapf(err, "reading %s", path)
			}
			updated := applySection(string(existing), section)

			if dryRun {
				_, _ = fmt.Fprint(a.stdout, updated)
				return nil
			}

			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return errors.Wrapf(err, "writing %s", path)
			}

			_, _ = fmt.Fprintf(a.stderr, "wrote igen section to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

// generateSection returns the sentinel-wrapped starter configuration.
func generateSection() string {
	body := `# Directories whose subdirectories are source groups. Each group keeps its
# sources under <path>/<group>/src/<source_basepath>/<inner_prefix><group>.
groups:
  - path: lib
source_basepath: ""

# Headers that include a <name><generated_suffix> file get an interface
# built from their .cpp and any "// igen-source:" files they list.
extensions: [".hpp"]
primary_extension: .cpp
generated_suffix: .gen.hpp

# Manifest and build cache live here unless set explicitly.
tmp_dir: tmp
doc_dir: doc/gen_interface

# Front-end flags, shell quoted. Flags after "igen build --" are appended.
parser_flags: ""
flag_denylist: ["-MMD", "-MP"]

# Declarations with one of these annotations are exported even without a
# doc comment.
pass_annotations: [igen_interface, igen_private]`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	if len(content) == 0 {
		return section + "\n"
	}

	// Append, ensuring a blank line separator.
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
