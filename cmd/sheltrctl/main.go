// Command sheltrctl runs operator tasks against a Sheltr database:
// rebuilding dashboard snapshots, inspecting a user's metrics, and
// running a bank sync by hand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	banklinkstore "github.com/sheltrhq/sheltr/internal/app/store/banklinks"
	expensestore "github.com/sheltrhq/sheltr/internal/app/store/expenses"
	metricsstore "github.com/sheltrhq/sheltr/internal/app/store/metrics"
	"github.com/sheltrhq/sheltr/internal/app/system/banksync"
	"github.com/sheltrhq/sheltr/internal/app/system/bsondecimal"
	"github.com/sheltrhq/sheltr/internal/app/system/clock"
	"github.com/sheltrhq/sheltr/internal/app/system/dashmetrics"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/app/system/workers"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globals struct {
	mongoURI string
	database string
	verbose  bool
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "sheltrctl",
		Short:         "Sheltr operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.mongoURI, "mongo-uri", envOr("SHELTR_MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	root.PersistentFlags().StringVar(&g.database, "database", envOr("SHELTR_MONGO_DATABASE", "sheltr"), "MongoDB database name")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(newSnapshotsCmd(g))
	root.AddCommand(newMetricsCmd(g))
	root.AddCommand(newBankCmd(g))
	return root
}

func (g *globals) logger() *zap.Logger {
	if !g.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// connect opens the database and returns a cleanup func.
func (g *globals) connect(ctx context.Context) (*mongo.Database, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(g.mongoURI).
		SetRegistry(bsondecimal.Registry()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client.Database(g.database), func() { _ = client.Disconnect(context.Background()) }, nil
}

func parseUser(s string) (primitive.ObjectID, error) {
	if strings.TrimSpace(s) == "" {
		return primitive.NilObjectID, fmt.Errorf("--user is required")
	}
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("--user: %w", err)
	}
	return id, nil
}

func newSnapshotsCmd(g *globals) *cobra.Command {
	snapshots := &cobra.Command{Use: "snapshots", Short: "Dashboard snapshot maintenance"}

	var user string
	var batch int64
	rebuild := &cobra.Command{
		Use:   "rebuild [--user <id>]",
		Short: "Rebuild one user's snapshot, or every dirty and stale one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, closeDB, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			store := metricsstore.New(db)

			if user == "" {
				w := workers.NewSnapshotRefresher(store, clock.System{}, g.logger(), time.Minute, batch)
				n := w.RunOnce(cmd.Context())
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %d snapshots\n", n)
				return nil
			}

			uid, err := parseUser(user)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeouts.Long())
			defer cancel()
			snap, err := store.Rebuild(ctx, uid, clock.System{}.Now())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %s computed_at=%s\n", uid.Hex(), snap.ComputedAt.Format(time.RFC3339))
			return nil
		},
	}
	rebuild.Flags().StringVar(&user, "user", "", "user id (hex); blank rebuilds all dirty and stale snapshots")
	rebuild.Flags().Int64Var(&batch, "batch", 500, "most snapshots rebuilt when --user is blank")

	snapshots.AddCommand(rebuild)
	return snapshots
}

// metricsReport is the printable form of one user's metrics.
type metricsReport struct {
	UserID     string              `json:"user_id" yaml:"user_id"`
	Source     dashmetrics.Mode    `json:"source" yaml:"source"`
	MonthStart time.Time           `json:"month_start" yaml:"month_start"`
	ComputedAt *time.Time          `json:"computed_at,omitempty" yaml:"computed_at,omitempty"`
	Metrics    dashmetrics.Metrics `json:"metrics" yaml:"metrics"`
}

// render writes v as yaml or json.
func render(w io.Writer, format string, v any) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}

func newMetricsCmd(g *globals) *cobra.Command {
	metrics := &cobra.Command{Use: "metrics", Short: "Inspect dashboard metrics"}

	var user, mode, output string
	show := &cobra.Command{
		Use:   "show --user <id>",
		Short: "Print a user's dashboard metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := parseUser(user)
			if err != nil {
				return err
			}
			if mode != string(dashmetrics.ModeSnapshot) && mode != string(dashmetrics.ModeLive) {
				return fmt.Errorf("--mode must be snapshot or live")
			}
			db, closeDB, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeouts.Long())
			defer cancel()
			report, err := loadReport(ctx, metricsstore.New(db), uid, dashmetrics.Mode(mode), clock.System{}.Now())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, report)
		},
	}
	show.Flags().StringVar(&user, "user", "", "user id (hex)")
	show.Flags().StringVar(&mode, "mode", string(dashmetrics.ModeSnapshot), "snapshot or live")
	show.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or json")

	metrics.AddCommand(show)
	return metrics
}

func loadReport(ctx context.Context, store *metricsstore.Store, uid primitive.ObjectID, mode dashmetrics.Mode, now time.Time) (metricsReport, error) {
	report := metricsReport{UserID: uid.Hex(), Source: mode}

	if mode == dashmetrics.ModeSnapshot {
		snap, found, err := store.Lookup(ctx, uid)
		if err != nil {
			return metricsReport{}, err
		}
		if !found || !snap.Usable(now) {
			return metricsReport{}, fmt.Errorf("no usable snapshot for %s (missing, dirty or out of date); try --mode live", uid.Hex())
		}
		report.MonthStart = snap.MonthStart
		report.ComputedAt = &snap.ComputedAt
		report.Metrics = snap.Metrics
		return report, nil
	}

	monthStart := dashmetrics.MonthStart(now)
	rows, err := store.FetchRaw(ctx, uid, monthStart)
	if err != nil {
		return metricsReport{}, err
	}
	report.MonthStart = monthStart
	report.Metrics = dashmetrics.ComputeFromRaw(rows, now)
	return report, nil
}

func newBankCmd(g *globals) *cobra.Command {
	bank := &cobra.Command{Use: "bank", Short: "Bank link operations"}

	var link string
	cfg := banksync.HTTPConfig{}
	sync := &cobra.Command{
		Use:   "sync --link <id>",
		Short: "Sync one bank link now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(link) == "" {
				return fmt.Errorf("--link is required")
			}
			linkID, err := primitive.ObjectIDFromHex(link)
			if err != nil {
				return fmt.Errorf("--link: %w", err)
			}
			provider, err := banksync.NewHTTPProvider(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			db, closeDB, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			syncer := &banksync.Syncer{
				Links:    banklinkstore.New(db),
				Expenses: expensestore.New(db),
				Dirty:    metricsstore.New(db),
				Provider: provider,
				Logger:   g.logger(),
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeouts.Sync())
			defer cancel()
			res, err := syncer.Sync(ctx, linkID)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "synced %s pages=%d upserted=%d removed=%d skipped=%d\n",
				linkID.Hex(), res.Pages, res.Upserted, res.Removed, res.Skipped)
			return nil
		},
	}
	sync.Flags().StringVar(&link, "link", "", "bank link id (hex)")
	sync.Flags().StringVar(&cfg.BaseURL, "bank-api-url", os.Getenv("SHELTR_BANK_API_URL"), "bank provider base URL")
	sync.Flags().StringVar(&cfg.ClientID, "bank-client-id", os.Getenv("SHELTR_BANK_CLIENT_ID"), "bank provider client ID")
	sync.Flags().StringVar(&cfg.ClientSecret, "bank-client-secret", os.Getenv("SHELTR_BANK_CLIENT_SECRET"), "bank provider client secret")
	sync.Flags().StringVar(&cfg.TokenURL, "bank-token-url", os.Getenv("SHELTR_BANK_TOKEN_URL"), "bank provider token URL")

	bank.AddCommand(sync)
	return bank
}
