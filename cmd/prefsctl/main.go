package main

import (
	"context"
	"fmt"
	"os"

	"github.com/maloquacious/semver"
	"github.com/park285/goban-state/internal/factorydefaults"
	"github.com/park285/goban-state/internal/migrate"
	"github.com/park285/goban-state/internal/obslog"
	"github.com/park285/goban-state/internal/prefs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"
)

var version = semver.Version{Minor: 4, PreRelease: "beta", Build: semver.Commit()}

var (
	prefsPath   string
	defaultsDir string
	dryRun      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "prefsctl",
		Short:         "Inspect and migrate goban-shell preference files",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&prefsPath, "prefs", "data/preferences.yaml", "preferences file")
	rootCmd.PersistentFlags().StringVar(&defaultsDir, "defaults-dir", os.Getenv("DEFAULTS_OVERRIDE_DIR"), "factory defaults override directory")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the preferences file and merge the shipped records",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the result instead of writing it")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the stored version with this build and check player records",
		RunE:  runVerify,
	}
	defaultsCmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the effective factory defaults",
		RunE:  runDefaults,
	}

	rootCmd.AddCommand(migrateCmd, verifyCmd, defaultsCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if err := obslog.InitFromEnv(); err != nil {
		return err
	}
	defer obslog.Sync()

	ctx := cmd.Context()
	defaults, err := factorydefaults.Load(defaultsDir)
	if err != nil {
		return err
	}
	file, err := prefs.NewFileStore(prefsPath)
	if err != nil {
		return err
	}

	var store prefs.Store = file
	var mem *prefs.MemoryStore
	if dryRun {
		data, err := file.Load(ctx)
		if err != nil {
			return err
		}
		mem = prefs.NewMemoryStore(data)
		store = mem
	}

	engine := migrate.New(migrate.Config{Logger: obslog.Named("migrate")})
	res, err := engine.Launch(ctx, defaults.Dict(), prefs.New(store))
	if err != nil {
		return err
	}
	m := res.Migration
	obslog.L().Info("prefsctl_migrate",
		zap.String("path", prefsPath),
		zap.String("result", m.Kind.String()),
		zap.Int("from", m.From),
		zap.Int("to", m.To),
		zap.Int("applied", m.Applied),
		zap.Bool("dry_run", dryRun),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d -> %d (%d steps), %d profile backups, %d player backups\n",
		m.Kind, m.From, m.To, m.Applied, res.ProfileBackups, res.PlayerBackups)

	if mem != nil {
		return printYAML(ctx, cmd, mem)
	}
	return nil
}

func printYAML(ctx context.Context, cmd *cobra.Command, s prefs.Store) error {
	data, err := s.Load(ctx)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(map[string]any(data))
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runVerify(cmd *cobra.Command, _ []string) error {
	defaults, err := factorydefaults.Load(defaultsDir)
	if err != nil {
		return err
	}
	file, err := prefs.NewFileStore(prefsPath)
	if err != nil {
		return err
	}
	data, err := file.Load(cmd.Context())
	if err != nil {
		return err
	}

	r := migrate.Verify(data, defaults.Version())
	w := cmd.OutOrStdout()
	stored := "none"
	if r.HasVersion {
		stored = fmt.Sprint(r.Stored)
	}
	fmt.Fprintf(w, "stored version:  %s\nshipped version: %d\nprofiles: %d, players: %d\n", stored, r.Target, r.Profiles, r.Players)
	for _, p := range r.Problems {
		fmt.Fprintln(w, "problem:", p)
	}
	if !r.OK() {
		return fmt.Errorf("%d problems found", len(r.Problems))
	}
	fmt.Fprintln(w, "ok")
	return nil
}

func runDefaults(cmd *cobra.Command, _ []string) error {
	defaults, err := factorydefaults.Load(defaultsDir)
	if err != nil {
		return err
	}
	out, err := defaults.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
