package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/moodtrack/internal/analytics"
	"github.com/kalambet/moodtrack/internal/api"
	"github.com/kalambet/moodtrack/internal/config"
	"github.com/kalambet/moodtrack/internal/ml"
	"github.com/kalambet/moodtrack/internal/modelstore"
	"github.com/kalambet/moodtrack/internal/seed"
	"github.com/kalambet/moodtrack/internal/storage"
)

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill an empty database with synthetic history",
	Long: `Fill an empty database with synthetic daily entries ending yesterday.
A database that already holds entries is left untouched.

Examples:
  moodtrack seed
  moodtrack seed --days 30 --seed 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			return fmt.Errorf("--days must be positive")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		s := uint64(cfg.Training.Seed)
		if cmd.Flags().Changed("seed") {
			v, _ := cmd.Flags().GetUint64("seed")
			s = v
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		n, err := seed.Run(cmd.Context(), store, time.Now().UTC(), days, s)
		if err != nil {
			return err
		}
		if n == 0 {
			printWarning("Database already has entries, nothing seeded")
			return nil
		}
		printSuccess("Seeded %d days", n)
		return nil
	},
}

func init() {
	seedCmd.Flags().Int("days", 120, "number of days to generate")
	seedCmd.Flags().Uint64("seed", 42, "random seed (default training.seed)")
}

// --- entries ---

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List, add, update or delete daily entries",
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entries, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/entries"+windowQuery(cmd))
		if err != nil {
			return err
		}

		var entries []api.EntryResponse
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No entries found.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %s  %2d  %s\n",
				colorize(colorCyan, fmt.Sprintf("#%-4d", e.ID)),
				e.Date,
				e.Mood,
				moodBar(float64(e.Mood)),
			)
		}
		return nil
	},
}

var entriesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Log a day",
	Long: `Log a day. The date defaults to today (UTC).

Examples:
  moodtrack entries add --mood 7 --sleep 7.5 --steps 9000
  moodtrack entries add --date 2025-03-10 --mood 4 --caffeine 300 --tags deadline,coffee`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := entryFromFlags(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/entries", req)
		if err != nil {
			return err
		}

		var created api.EntryResponse
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		printSuccess("Logged %s (id %d, mood %d)", created.Date, created.ID, created.Mood)
		return nil
	},
}

var entriesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace every field of an entry",
	Long: `Replace every field of an entry. Unset metrics are stored as zero.

Example:
  moodtrack entries update 12 --date 2025-03-10 --mood 6 --sleep 8`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := entryFromFlags(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/entries/"+url.PathEscape(args[0]), req)
		if err != nil {
			return err
		}

		var updated api.EntryResponse
		if err := decodeJSON(resp, &updated); err != nil {
			return err
		}

		printSuccess("Updated %s (id %d, mood %d)", updated.Date, updated.ID, updated.Mood)
		return nil
	},
}

var entriesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/entries/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted entry %s", args[0])
		return nil
	},
}

func init() {
	addWindowFlags(entriesListCmd)
	addEntryFlags(entriesAddCmd)
	addEntryFlags(entriesUpdateCmd)

	entriesCmd.AddCommand(entriesListCmd)
	entriesCmd.AddCommand(entriesAddCmd)
	entriesCmd.AddCommand(entriesUpdateCmd)
	entriesCmd.AddCommand(entriesDeleteCmd)
}

func addEntryFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("date", "", "day to log as YYYY-MM-DD (default today)")
	f.Int("mood", 0, "mood from 1 to 10")
	f.Float64("sleep", 0, "hours slept")
	f.Int("steps", 0, "step count")
	f.Int("workouts", 0, "workout minutes")
	f.Int("caffeine", 0, "caffeine in mg")
	f.Int("meals", 0, "number of meals")
	f.Float64("work-hours", 0, "hours worked")
	f.Int("screen-time", 0, "screen time in minutes")
	f.String("journal", "", "free-text journal line")
	f.String("tags", "", "comma-separated tags")
	cmd.MarkFlagRequired("mood")
}

// entryFromFlags builds and validates an entry request from entriesAddCmd's flags.
func entryFromFlags(cmd *cobra.Command) (api.EntryRequest, error) {
	f := cmd.Flags()
	var req api.EntryRequest
	req.Date, _ = f.GetString("date")
	if req.Date == "" {
		req.Date = time.Now().UTC().Format(storage.DateLayout)
	}
	req.Mood, _ = f.GetInt("mood")
	req.SleepHours, _ = f.GetFloat64("sleep")
	req.Steps, _ = f.GetInt("steps")
	req.Workouts, _ = f.GetInt("workouts")
	req.Caffeine, _ = f.GetInt("caffeine")
	req.Meals, _ = f.GetInt("meals")
	req.WorkHours, _ = f.GetFloat64("work-hours")
	req.ScreenTime, _ = f.GetInt("screen-time")
	req.Journal, _ = f.GetString("journal")
	if tags, _ := f.GetString("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Tags = append(req.Tags, t)
			}
		}
	}

	if _, err := req.Entry(); err != nil {
		return api.EntryRequest{}, err
	}
	return req, nil
}

// --- analytics ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Average mood and lifestyle correlations for a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/analytics/summary"+windowQuery(cmd))
		if err != nil {
			return err
		}

		var s analytics.Summary
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, s)
		}
		if len(s.WeeklyAverages) == 0 {
			fmt.Println("No entries in this window.")
			return nil
		}
		fmt.Printf("%s %.2f  %s\n", colorize(colorBold, "Average mood:"), s.AvgMood, moodBar(s.AvgMood))
		fmt.Println(colorize(colorBold, "Correlation with mood:"))
		for _, c := range s.Corr {
			fmt.Printf("  %-12s %+.2f\n", c.Feature, c.Coefficient)
		}
		return nil
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Strongest lifestyle factors and recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/analytics/insights")
		if err != nil {
			return err
		}

		var in analytics.Insight
		if err := decodeJSON(resp, &in); err != nil {
			return err
		}

		fmt.Println(in.Summary)
		for _, r := range in.Recommendations {
			fmt.Printf("  %s %s\n", colorize(colorCyan, "→"), r)
		}
		return nil
	},
}

func init() {
	addWindowFlags(summaryCmd)
	summaryCmd.Flags().Bool("json", false, "print the raw JSON summary")
}

// --- ml ---

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Retrain the cluster and prediction models on all entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Retraining models...")
		resp, err := client.post(cmd.Context(), "/ml/retrain", nil)
		if err != nil {
			return err
		}

		var meta modelstore.Metadata
		if err := decodeJSON(resp, &meta); err != nil {
			return err
		}

		if meta.UpdatedAt == nil {
			printWarning("Nothing to train on: %s", meta.Message)
			return nil
		}
		printSuccess("Trained on %d features, k=%d", len(meta.Features), meta.K)
		return nil
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict tomorrow's mood",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/ml/predict"
		if date, _ := cmd.Flags().GetString("date"); date != "" {
			if _, err := storage.ParseDate(date); err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD")
			}
			path += "?date=" + url.QueryEscape(date)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var p ml.Prediction
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		fmt.Printf("%s %.2f  %s\n", colorize(colorBold, "Predicted mood:"), p.PredictedMood, moodBar(p.PredictedMood))
		if p.Basis != ml.BasisModel {
			printWarning("No trained model, estimate is %s", p.Basis)
		}
		return nil
	},
}

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Show behavioral day clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/ml/clusters")
		if err != nil {
			return err
		}

		var report ml.ClusterReport
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, report)
		}
		if len(report.Clusters) == 0 {
			fmt.Println("No entries to cluster.")
			return nil
		}
		for _, c := range report.Clusters {
			fmt.Printf("%s  %d days\n", colorize(colorBold, fmt.Sprintf("%-20s", c.Name)), c.Days)
		}
		return nil
	},
}

func init() {
	predictCmd.Flags().String("date", "", "as-of date YYYY-MM-DD (informational)")
	clustersCmd.Flags().Bool("json", false, "print assignments and centroids as JSON")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- helpers ---

func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "first day YYYY-MM-DD (inclusive)")
	cmd.Flags().String("to", "", "last day YYYY-MM-DD (inclusive)")
}

// windowQuery encodes the --from/--to flags as a query string.
func windowQuery(cmd *cobra.Command) string {
	q := url.Values{}
	for _, name := range []string{"from", "to"} {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			q.Set(name, v)
		}
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

