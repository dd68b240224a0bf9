package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rankradar",
		Short: "Track app-store keyword rankings and rating trends over time",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(trackCmd())
	root.AddCommand(untrackCmd())
	root.AddCommand(appsCmd())
	root.AddCommand(keywordsCmd())
	root.AddCommand(refreshCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(countryCmd())
	root.AddCommand(reviewsCmd())
	root.AddCommand(chartsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func trackCmd() *cobra.Command {
	var (
		catalogID int64
		bundleID  string
	)

	cmd := &cobra.Command{
		Use:   "track [search term]",
		Short: "Start tracking an app by search term, catalog id, or bundle id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(args, catalogID, bundleID)
		},
	}

	cmd.Flags().Int64Var(&catalogID, "id", 0, "catalog id instead of a search term")
	cmd.Flags().StringVar(&bundleID, "bundle-id", "", "bundle id instead of a search term")
	return cmd
}

func untrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "untrack <catalog-id>",
		Short: "Stop tracking an app and drop its keywords and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntrack(args[0])
		},
	}
}

func appsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Show tracked apps with current ranks and rating trends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApps(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func keywordsCmd() *cobra.Command {
	var catalogID int64

	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "Manage tracked keywords for an app",
	}
	cmd.PersistentFlags().Int64Var(&catalogID, "app", 0, "catalog id of the tracked app")

	add := &cobra.Command{
		Use:   "add <keyword>...",
		Short: "Track one or more keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeywordsAdd(catalogID, args)
		},
	}
	rm := &cobra.Command{
		Use:   "rm <keyword>",
		Short: "Stop tracking a keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeywordsRemove(catalogID, args[0])
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "Show tracked keywords with ranking history views",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeywordsList(catalogID)
		},
	}

	cmd.AddCommand(add, rm, list)
	return cmd
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one rank and rating refresh sweep, then sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh()
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Force one sync cycle with the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync()
		},
	}
}

func countryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "country [code]",
		Short: "Show or set the preferred store country",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := ""
			if len(args) == 1 {
				code = args[0]
			}
			return runCountry(code)
		},
	}
}

func reviewsCmd() *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "reviews <catalog-id>",
		Short: "Show recent customer reviews for an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReviews(args[0], page)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "reviews feed page")
	return cmd
}

func chartsCmd() *cobra.Command {
	var (
		genre int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "charts",
		Short: "Show the top-free chart as tracking candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCharts(genre, limit)
		},
	}

	cmd.Flags().IntVar(&genre, "genre", 0, "genre id (0 = all categories)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max chart entries")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler, sync watcher, and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port")
	return cmd
}
