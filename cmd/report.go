package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"pipewatch.dev/pipewatch/internal/analysis"
	"pipewatch.dev/pipewatch/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the ranked risk report",
	Long: `Score every sensor, print the ranked risk assessment and the
cross-sensor comparison verdict, then exit. With --cached, print the
risk ranking persisted by the analyzer's last scoring pass instead of
rescoring.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	bindDBFlags(reportCmd)

	reportCmd.Flags().Bool("cached", false, "print the persisted ranking without rescoring")
	_ = viper.BindPFlag("report.cached", reportCmd.Flags().Lookup("cached"))
}

// bindDBFlags registers the shared PostgreSQL flags used by the one-shot
// commands (report, classify, drill, reset).
func bindDBFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	cmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	cmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	cmd.Flags().String("db-password", "", "PostgreSQL password")
	cmd.Flags().String("db-name", "pipewatch", "PostgreSQL database name")
	cmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")

	_ = viper.BindPFlag("db.host", cmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("db.port", cmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("db.user", cmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("db.password", cmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("db.name", cmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("db.sslmode", cmd.Flags().Lookup("db-sslmode"))
}

// openEngine connects to the configured database and builds a decision
// engine over it. The caller closes the returned DB.
func openEngine(logger *slog.Logger) (*analysis.Engine, store.Store, *gorm.DB, error) {
	db, err := store.NewDB(&store.DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetInt("db.port"),
		User:     viper.GetString("db.user"),
		Password: viper.GetString("db.password"),
		DBName:   viper.GetString("db.name"),
		SSLMode:  viper.GetString("db.sslmode"),
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	st, err := store.NewGorm(db)
	if err != nil {
		return nil, nil, nil, err
	}

	engine, err := analysis.New(&analysis.Config{
		Store:  st,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return engine, st, db, nil
}

func runReport(_ *cobra.Command, _ []string) error {
	logger := GetLogger()

	engine, st, db, err := openEngine(logger)
	if err != nil {
		logger.Error("failed to open engine", "error", err)
		return err
	}
	defer func() {
		_ = store.CloseDB(db, logger)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if viper.GetBool("report.cached") {
		return printCachedReport(ctx, st)
	}

	report, err := engine.HealthReport(ctx)
	if err != nil {
		logger.Error("failed to build health report", "error", err)
		return err
	}

	comparison, err := engine.CompareAcrossPipes(ctx)
	if err != nil {
		logger.Error("failed to compare across pipes", "error", err)
		return err
	}

	fmt.Printf("Health report generated at %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SENSOR\tRISK\tLEAK%\tBLOCKAGE%\tRECOMMENDATION\tFACTORS")
	for _, p := range report.Predictions {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n",
			p.SensorID,
			p.RiskScore,
			p.LeakProbability,
			p.BlockageProbability,
			p.Recommendation,
			strings.Join(p.Factors, "; "),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nCross-sensor verdict: system-wide=%v\n", comparison.IsSystemWideIssue)
	fmt.Printf("  %s\n", comparison.Diagnosis)
	if len(comparison.AffectedSensors) > 0 {
		fmt.Printf("  affected: %s\n", strings.Join(comparison.AffectedSensors, ", "))
	}

	return nil
}

// printCachedReport prints the ranking the analyzer persisted on its last
// scoring pass, highest risk first.
func printCachedReport(ctx context.Context, st store.Store) error {
	scores, err := st.GetRiskScores(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted risk scores: %w", err)
	}

	if len(scores) == 0 {
		fmt.Println("No persisted risk scores yet; run the analyzer or drop --cached.")
		return nil
	}

	fmt.Println("Persisted risk ranking")

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SENSOR\tRISK\tLEAK%\tBLOCKAGE%\tANALYZED\tFACTORS")
	for _, s := range scores {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n",
			s.SensorID,
			s.RiskScore,
			s.LeakProbability,
			s.BlockageProbability,
			s.LastAnalyzedAt.Format(time.RFC3339),
			strings.Join(s.Factors, "; "),
		)
	}
	return w.Flush()
}
