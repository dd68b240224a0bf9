package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/rankradar/rankradar/internal/config"
	"github.com/rankradar/rankradar/internal/scheduler"
	"github.com/rankradar/rankradar/internal/store"
	"github.com/rankradar/rankradar/internal/syncer"
	"github.com/rankradar/rankradar/internal/tracker"
	"github.com/rankradar/rankradar/pkg/appstore"
	"github.com/rankradar/rankradar/pkg/server"
)

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// app bundles the wired-up components every command needs.
type app struct {
	cfg       *config.Config
	local     *store.SQLiteStore
	remote    store.KV
	tracker   *tracker.Tracker
	refresher *tracker.Refresher
	syncer    *syncer.Syncer
	catalog   *appstore.Client
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	local, err := store.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	remote, err := openRemote(cfg)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("open remote store: %w", err)
	}

	t := tracker.New(local, nil)
	if err := t.Load(ctx); err != nil {
		local.Close()
		remote.Close()
		return nil, err
	}
	if _, err := local.Get(ctx, store.KeyCountry); errors.Is(err, store.ErrNoData) && cfg.Country != "" {
		_ = t.SetCountry(ctx, cfg.Country)
	}

	catalog := appstore.New()
	refresher := tracker.NewRefresher(t, catalog, &tracker.Status{},
		cfg.Refresh.ParseRequestDelay(), cfg.Search.Limit, nil)
	sync := syncer.New(t, local, remote, &tracker.Status{}, nil)

	return &app{
		cfg:       cfg,
		local:     local,
		remote:    remote,
		tracker:   t,
		refresher: refresher,
		syncer:    sync,
		catalog:   catalog,
	}, nil
}

func openRemote(cfg *config.Config) (store.KV, error) {
	switch cfg.Remote.Backend {
	case "", "file":
		return store.OpenFile(cfg.Remote.Dir, cfg.Remote.QuotaBytes)
	case "postgres":
		return store.OpenPostgres(cfg.Remote.DSN), nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

func (a *app) close() {
	a.local.Close()
	a.remote.Close()
}

func runTrack(args []string, catalogID int64, bundleID string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	country := a.tracker.Country()
	var res *appstore.Result
	switch {
	case catalogID != 0:
		res, err = a.catalog.Lookup(ctx, catalogID, country)
	case bundleID != "":
		res, err = a.catalog.LookupBundleID(ctx, bundleID, country)
	case len(args) > 0:
		term := strings.Join(args, " ")
		var results []appstore.Result
		results, err = a.catalog.Search(ctx, term, country, 1)
		if err == nil {
			if len(results) == 0 {
				return fmt.Errorf("no results for %q in %s", term, country)
			}
			res = &results[0]
		}
	default:
		return fmt.Errorf("a search term, --id, or --bundle-id is required")
	}
	if err != nil {
		return fmt.Errorf("catalog lookup: %w", err)
	}

	added, err := a.tracker.AddApp(ctx, *res)
	if err != nil {
		return err
	}

	if err := a.syncer.SyncOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	fmt.Printf("tracking %s (%d) by %s\n", added.Name, added.CatalogID, added.Seller)
	return nil
}

func runUntrack(arg string) error {
	catalogID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid catalog id %q", arg)
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.tracker.RemoveApp(ctx, catalogID); err != nil {
		return err
	}
	if err := a.syncer.SyncOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	fmt.Printf("stopped tracking %d\n", catalogID)
	return nil
}

func runApps(jsonOutput bool) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	apps := a.tracker.Apps().Apps

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(apps)
	}

	if len(apps) == 0 {
		fmt.Println("no tracked apps (add one: rankradar track <term>)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATALOG ID\tNAME\tKEYWORDS\tRATING\tUPDATED")
	for _, app := range apps {
		rating := "-"
		if r := app.LatestRating(); r != nil {
			rating = fmt.Sprintf("%.1f (%d)", r.Average, r.Count)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
			app.CatalogID, app.Name, len(app.Keywords), rating,
			app.LastUpdated.Format(time.RFC3339))
	}
	return w.Flush()
}

func runKeywordsAdd(catalogID int64, keywords []string) error {
	if catalogID == 0 {
		return fmt.Errorf("--app is required")
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	added, err := a.tracker.AddKeywords(ctx, catalogID, keywords)
	if err != nil {
		return err
	}
	if err := a.syncer.SyncOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	for _, kw := range added {
		fmt.Printf("tracking %q (%s)  popularity=%d difficulty=%d\n",
			kw.Text, kw.Country, kw.Popularity, kw.Difficulty)
	}
	return nil
}

func runKeywordsRemove(catalogID int64, keyword string) error {
	if catalogID == 0 {
		return fmt.Errorf("--app is required")
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.tracker.RemoveKeyword(ctx, catalogID, keyword); err != nil {
		return err
	}
	if err := a.syncer.SyncOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	fmt.Printf("stopped tracking %q\n", keyword)
	return nil
}

func runKeywordsList(catalogID int64) error {
	if catalogID == 0 {
		return fmt.Errorf("--app is required")
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	apps := a.tracker.Apps()
	i := apps.FindApp(catalogID)
	if i < 0 {
		return fmt.Errorf("catalog id %d is not tracked", catalogID)
	}
	app := apps.Apps[i]

	if len(app.Keywords) == 0 {
		fmt.Println("no tracked keywords (add one: rankradar keywords add --app", catalogID, "<keyword>)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEYWORD\tCOUNTRY\tRANK\tCHANGE\tPOP\tDIFF\tEST DOWNLOADS\tOBSERVATIONS")
	for _, kw := range app.Keywords {
		rank := "-"
		if r := kw.CurrentRank(); r > 0 {
			rank = strconv.Itoa(r)
		}
		change := ""
		switch c := kw.RankChange(); {
		case c > 0:
			change = fmt.Sprintf("+%d", c)
		case c < 0:
			change = strconv.Itoa(c)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			kw.Text, kw.Country, rank, change, kw.Popularity, kw.Difficulty,
			kw.EstimatedDownloads(), len(kw.Rankings))
	}
	return w.Flush()
}

func runRefresh() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Fprintln(os.Stderr, "refreshing ranks and ratings...")
	if err := a.refresher.RefreshAll(ctx); err != nil {
		return err
	}
	if _, lastErr := a.refresher.Status().Snapshot(); lastErr != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", lastErr)
	}

	if err := a.syncer.SyncOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if _, lastErr := a.syncer.Status().Snapshot(); lastErr != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", lastErr)
	}

	return runApps(false)
}

func runSync() error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.syncer.SyncOnce(ctx); err != nil {
		return err
	}
	if _, lastErr := a.syncer.Status().Snapshot(); lastErr != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", lastErr)
	}

	fmt.Printf("synced at %s\n", a.syncer.LastSync().Format(time.RFC3339))
	return nil
}

func runCountry(code string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if code == "" {
		fmt.Println(a.tracker.Country())
		return nil
	}

	code = strings.ToLower(strings.TrimSpace(code))
	if err := a.tracker.SetCountry(ctx, code); err != nil {
		return err
	}
	fmt.Printf("country set to %s\n", code)
	return nil
}

func runReviews(arg string, page int) error {
	catalogID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid catalog id %q", arg)
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	reviews, err := a.catalog.Reviews(ctx, catalogID, a.tracker.Country(), page)
	if err != nil {
		return fmt.Errorf("fetch reviews: %w", err)
	}
	if len(reviews) == 0 {
		fmt.Println("no reviews on this page")
		return nil
	}

	for _, rv := range reviews {
		fmt.Printf("%s  %s — %s (v%s)\n", strings.Repeat("★", rv.Rating), rv.Title, rv.Author, rv.Version)
		if rv.Body != "" {
			fmt.Printf("    %s\n", rv.Body)
		}
	}
	return nil
}

func runCharts(genre, limit int) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if genre == 0 {
		genre = a.cfg.Charts.Genre
	}
	if limit == 0 {
		limit = a.cfg.Charts.Limit
	}

	entries, err := a.catalog.TopCharts(ctx, a.tracker.Country(), genre, limit)
	if err != nil {
		return fmt.Errorf("fetch charts: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tNAME")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\n", e.Position, e.Name)
	}
	return w.Flush()
}

func runServe(port int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	go func() {
		if err := a.syncer.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "syncer error: %v\n", err)
		}
	}()

	srv := server.New(a.tracker, a.refresher, a.syncer, a.catalog, port)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	// Orchestrator: startup sync, remote-change watch, forced cycles.
	go func() {
		if err := a.syncer.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "syncer error: %v\n", err)
		}
	}()

	// Periodic refresh sweeps.
	sched := scheduler.New(a.refresher, a.syncer, a.cfg.Refresh.ParseInterval())
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", err)
		}
	}()

	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}()

	srv := server.New(a.tracker, a.refresher, a.syncer, a.catalog, port)
	return srv.ListenAndServe()
}
