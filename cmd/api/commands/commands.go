package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/projtracker/core/internal/adapters/client"
	"github.com/projtracker/core/internal/adapters/repository"
	"github.com/projtracker/core/internal/application/services"
	"github.com/projtracker/core/internal/domain/entities"
	"github.com/projtracker/core/internal/infrastructure/config"
	"github.com/projtracker/core/internal/infrastructure/logger"
	"github.com/projtracker/core/internal/infrastructure/metrics"
	"github.com/projtracker/core/internal/infrastructure/server"
)

// Build information, set with -ldflags
var (
	Version   = "1.0.0"
	GitCommit = "development"
)

const timeLayout = "2006-01-02 15:04"

// NewRootCommand assembles the CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tracker",
		Short:         "Project deadline tracker",
		Long:          `Tracks one active project with a deadline countdown and the history of delivered projects.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./config.yaml if present)")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewStartCommand())
	rootCmd.AddCommand(NewDeliverCommand())
	rootCmd.AddCommand(NewResetCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the tracker API server",
		Long:  "Load the state file and serve the project tracker API on the loopback interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active project, its countdown and the delivered history",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}

			state, err := c.GetState(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}

			printState(cmd.OutOrStdout(), state, stats)
			return nil
		},
	}
}

// NewStartCommand creates the start command
func NewStartCommand() *cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a project with a deadline in days",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			days, _ := cmd.Flags().GetInt("days")

			c, err := newClient(cmd)
			if err != nil {
				return err
			}

			state, err := c.StartProject(cmd.Context(), name, days)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Started %q, due %s\n",
				state.ActiveProject.Name,
				state.ActiveProject.Deadline().Local().Format(timeLayout))
			return nil
		},
	}

	startCmd.Flags().String("name", "", "Project name (required)")
	startCmd.Flags().Int("days", 0, "Deadline in days (required)")
	_ = startCmd.MarkFlagRequired("name")
	_ = startCmd.MarkFlagRequired("days")

	return startCmd
}

// NewDeliverCommand creates the deliver command
func NewDeliverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deliver",
		Short: "Mark the active project as delivered",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}

			state, err := c.DeliverProject(cmd.Context())
			if err != nil {
				return err
			}

			last := state.DeliveredProjects[len(state.DeliveredProjects)-1]
			fmt.Fprintf(cmd.OutOrStdout(), "Delivered %q. Total delivered: %d\n", last.Name, len(state.DeliveredProjects))
			return nil
		},
	}
}

// NewResetCommand creates the reset command
func NewResetCommand() *cobra.Command {
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the active project and all delivered history",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return errors.New("reset removes all data and cannot be undone; pass --yes to confirm")
			}

			c, err := newClient(cmd)
			if err != nil {
				return err
			}

			if _, err := c.ResetState(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "State reset")
			return nil
		},
	}

	resetCmd.Flags().Bool("yes", false, "Confirm the reset")

	return resetCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print tracker version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Project Tracker v%s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Git Commit: %s\n", GitCommit)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	appLogger, err := logger.New(config.LoggerConfig{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Client, appLogger), nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	validate := validator.New()
	recorder := metrics.New()

	repo := repository.NewStateRepository(cfg.Storage.StateFile, validate, appLogger)
	projectService := services.NewProjectService(ctx, repo, services.ProjectServiceConfig{
		StartPolicy: cfg.Tracker.GetStartPolicy(),
		Validator:   validate,
		Metrics:     recorder,
	}, appLogger)

	srv, err := server.New(cfg, projectService, repo.Location(), recorder, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	appLogger.Infow("Starting project tracker server",
		"address", cfg.Server.GetAddr(),
		"state_file", cfg.Storage.StateFile,
		"environment", cfg.App.Environment,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.Server.GetAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	appLogger.Infow("Server stopped")
	return nil
}

// printState renders the state together with the server's stats, which
// carry the countdown and the monthly count as the server sees them.
func printState(w io.Writer, state entities.AppState, stats entities.Stats) {
	if state.ActiveProject == nil {
		fmt.Fprintln(w, "No active project")
	} else {
		p := state.ActiveProject
		fmt.Fprintf(w, "Active project: %s\n", p.Name)
		fmt.Fprintf(w, "Started:        %s\n", p.StartedAt.Local().Format(timeLayout))
		fmt.Fprintf(w, "Deadline:       %s (%d days)\n", p.Deadline().Local().Format(timeLayout), p.DeadlineDays)
		if stats.Countdown != nil {
			fmt.Fprintf(w, "Time left:      %s\n", stats.Countdown)
		}
	}

	fmt.Fprintf(w, "\nDelivered: %d total, %d this month\n", stats.TotalDelivered, stats.DeliveredThisMonth)

	delivered := state.DeliveredNewestFirst()
	if len(delivered) == 0 {
		fmt.Fprintln(w, "No projects delivered yet.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DELIVERED\tPROJECT")
	for _, p := range delivered {
		fmt.Fprintf(tw, "%s\t%s\n", p.DeliveredAt.Local().Format(timeLayout), p.Name)
	}
	tw.Flush()
}
