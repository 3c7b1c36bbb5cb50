package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/glorpus-work/querykit/pkg/cache"
	"github.com/glorpus-work/querykit/pkg/sack"
	"github.com/glorpus-work/querykit/pkg/service"
	"github.com/spf13/cobra"
)

// repoqueryFilters are the QueryRepo keys exposed as repoquery flags, in
// the order they are applied.
var repoqueryFilters = []struct {
	key   string
	usage string
}{
	{"file", "packages owning a file matching the glob"},
	{"whatconflicts", "packages conflicting with the capability"},
	{"whatrequires", "packages requiring the capability"},
	{"whatobsoletes", "packages obsoleting the capability"},
	{"whatprovides", "packages providing a capability (or file) matching the glob"},
	{"whatrecommends", "packages recommending a capability matching the glob"},
	{"whatenhances", "packages enhancing a capability matching the glob"},
	{"whatsupplements", "packages supplementing a capability matching the glob"},
	{"whatsuggests", "packages suggesting a capability matching the glob"},
}

func addDistroFlag(cmd *cobra.Command, distro *string) {
	cmd.Flags().StringVarP(distro, "distro", "d", "", "distribution to query (required)")
	_ = cmd.MarkFlagRequired("distro")
}

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	var distro string

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search packages by name",
		Long: `Search the packages of a distribution whose name contains the given text.
Only packages built for the distribution's architectures are listed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c daemon) error {
				pkgs, err := c.SearchPackages(ctx, args[0], distro)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return printPackages(pkgs)
			})
		},
	}
	addDistroFlag(cmd, &distro)

	return cmd
}

// NewFilesCmd creates the files command.
func NewFilesCmd() *cobra.Command {
	var distro string

	cmd := &cobra.Command{
		Use:   "files <package>",
		Short: "List the files of a package",
		Long:  "List the files shipped by the newest build of a package.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c daemon) error {
				files, err := c.ListFiles(ctx, args[0], distro)
				if err != nil {
					return fmt.Errorf("listing files failed: %w", err)
				}
				return printLines(files)
			})
		},
	}
	addDistroFlag(cmd, &distro)

	return cmd
}

// NewQueryCmd creates the query command.
func NewQueryCmd() *cobra.Command {
	var distro string

	kinds := make([]string, 0, len(sack.RelationKinds))
	for _, k := range sack.RelationKinds {
		kinds = append(kinds, string(k))
	}

	cmd := &cobra.Command{
		Use:   "query <package> <relation>",
		Short: "Show the dependency relations of a package",
		Long: fmt.Sprintf(`Show one kind of dependency relation of the newest build of a package.

Relations: %s`, strings.Join(kinds, ", ")),
		Args:      cobra.ExactArgs(2),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c daemon) error {
				rels, err := c.QueryRepoPackage(ctx, args[0], args[1], distro)
				if err != nil {
					return fmt.Errorf("query failed: %w", err)
				}
				return printLines(rels)
			})
		},
	}
	addDistroFlag(cmd, &distro)

	return cmd
}

// NewRepoqueryCmd creates the repoquery command.
func NewRepoqueryCmd() *cobra.Command {
	var distro string
	values := make(map[string]*string, len(repoqueryFilters))

	cmd := &cobra.Command{
		Use:   "repoquery",
		Short: "Find packages by file or capability",
		Long: `Find the packages of a distribution matching every given filter.
Without filters every package is listed.`,
		Example: `  querykit repoquery -d fedora --whatprovides 'webserver'
  querykit repoquery -d fedora --file '/usr/bin/*sh' --whatrequires glibc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queries := map[string]string{}
			for key, v := range values {
				if cmd.Flags().Changed(key) {
					queries[key] = *v
				}
			}
			return withClient(cmd, func(ctx context.Context, c daemon) error {
				pkgs, err := c.QueryRepo(ctx, queries, distro)
				if err != nil {
					return fmt.Errorf("repoquery failed: %w", err)
				}
				return printPackages(pkgs)
			})
		},
	}
	addDistroFlag(cmd, &distro)
	for _, f := range repoqueryFilters {
		values[f.key] = cmd.Flags().String(f.key, "", f.usage)
	}

	return cmd
}

func printLines(lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(stdout, l); err != nil {
			return err
		}
	}
	return nil
}

func printPackages(pkgs []service.PackageTuple) error {
	if len(pkgs) == 1 && pkgs[0] == service.InvalidDistroPackage {
		return printLines([]string{service.InvalidDistroMessage})
	}
	if len(pkgs) == 0 {
		_, err := fmt.Fprintln(stdout, "No packages found")
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PACKAGE\tVERSION\tDOWNLOAD\tINSTALLED\tSUMMARY")
	for _, p := range pkgs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			nameColor.Sprint(p.Name),
			versionColor.Sprint(p.Version),
			formatSize(p.DownloadSize),
			formatSize(p.InstallSize),
			truncate(p.Summary, MaxSummaryLength))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := mutedColor.Fprintf(stdout, "\n%d package(s)\n", len(pkgs))
	return err
}

func formatSize(n int32) string {
	if n < 0 {
		return "-"
	}
	return cache.FormatBytes(int64(n))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
