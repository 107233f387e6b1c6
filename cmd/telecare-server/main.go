package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/telecare/telecare/internal/config"
	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "telecare-server",
		Short: "Telemedicine API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newLogger writes JSON to stdout, or console output in development. When
// LOG_FILE is set the same events also go to a rotated file.
func newLogger(cfg *config.Config) (zerolog.Logger, func() error) {
	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	closeFile := func() error { return nil }
	if cfg.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closeFile = file.Close
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "telecare-server").Logger(), closeFile
}

// migrationSource prefers MIGRATIONS_DIR and falls back to the embedded files.
func migrationSource(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func openMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.MigrationsDir = dir
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationSource(cfg)), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().String("dir", "", "Read migrations from this directory instead of the embedded set")

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closePool, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closePool()

			target, _ := cmd.Flags().GetInt("to")
			count, err := migrator.UpTo(ctx, target)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies everything)")
	cmd.AddCommand(upCmd)

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closePool, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// userCmd provisions staff accounts. Public registration only creates patients.
func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account with any role",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := newUserFromFlags(cmd)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := identity.NewService(identity.NewRepoPG(pool), auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL))
			u, err := svc.CreateUser(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (%s)\n", u.Role, u.Username, u.ID)
			return nil
		},
	}
	createCmd.Flags().String("username", "", "Login name")
	createCmd.Flags().String("password", "", "Initial password")
	createCmd.Flags().String("role", string(auth.RolePatient), "patient, doctor, pharmacy or admin")
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("email", "", "Email address")
	createCmd.Flags().String("mobile", "", "Mobile number")
	createCmd.Flags().String("specialist", "", "Doctor specialty")
	createCmd.Flags().String("description", "", "Doctor profile text")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("password")

	cmd.AddCommand(createCmd)
	return cmd
}

func newUserFromFlags(cmd *cobra.Command) (identity.NewUser, error) {
	str := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	role, err := auth.ParseRole(str("role"))
	if err != nil {
		return identity.NewUser{}, err
	}
	return identity.NewUser{
		Username:    str("username"),
		Password:    str("password"),
		Email:       str("email"),
		Name:        str("name"),
		Mobile:      str("mobile"),
		Role:        role,
		Specialist:  str("specialist"),
		Description: str("description"),
	}, nil
}
