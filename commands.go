package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"sosmed/models"
	"sosmed/pkg/imagehost"
	"sosmed/process"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"gorm.io/gorm"
)

// Server timeouts.
const (
	readHeaderTimeout = 2 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type cliState struct {
	envFile string
	addr    string
}

// rootCommand builds the CLI. Running it without a sub-command serves HTTP.
func rootCommand() *cobra.Command {
	st := &cliState{}
	cmd := &cobra.Command{
		Use:          "sosmed [command] [flags]",
		Short:        "Social network REST backend",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), st)
		},
	}
	cmd.PersistentFlags().StringVar(&st.envFile, "env-file", ".env", "path to a .env file (missing is fine)")
	cmd.PersistentFlags().StringVar(&st.addr, "addr", "", "listen address, overrides PORT")

	cmd.AddCommand(
		serveCommand(st),
		migrateCommand(st),
		userCommand(st),
		watchCommand(st),
		pruneImagesCommand(st),
	)
	return cmd
}

func serveCommand(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), st)
		},
	}
}

func migrateCommand(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(st)
			if err != nil {
				return err
			}
			db, err := openDB(cfg.DSN)
			if err != nil {
				return err
			}
			defer closeDB(db, logger)
			if err := migrate(db.WithContext(cmd.Context()), logger); err != nil {
				return err
			}
			logger.InfoContext(cmd.Context(), "migration completed")
			return nil
		},
	}
}

func userCommand(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User commands",
	}
	cmd.AddCommand(
		userCreateCommand(st),
		userResetPasswordCommand(st),
	)
	return cmd
}

func userCreateCommand(st *cliState) *cobra.Command {
	var in signupInput
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create user",
		Long: "Creates a user with the given handle. The password is read from --password,\n" +
			"or from stdin / an interactive prompt when the flag is not given.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context(), st)
			if err != nil {
				return err
			}
			defer closeApp()

			in.UserName = args[0]
			if in.FullName == "" {
				in.FullName = in.UserName
			}
			if in.Password == "" {
				if in.Password, err = prompt("password: ", true); err != nil {
					return err
				}
			}
			user, err := app.registerUser(cmd.Context(), in)
			if err != nil {
				return err
			}
			app.logger.InfoContext(cmd.Context(), "created user",
				slog.String("name", user.UserName),
				slog.Uint64("id", uint64(user.ID)),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&in.FullName, "name", "", "display name (defaults to NAME)")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userResetPasswordCommand(st *cliState) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset-password NAME",
		Short: "Set a new password and end the user's session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context(), st)
			if err != nil {
				return err
			}
			defer closeApp()

			user, err := findUserByName(app.db.WithContext(cmd.Context()), args[0])
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = prompt("new password: ", true); err != nil {
					return err
				}
			}
			if len(password) < minNewPasswordLen {
				return fmt.Errorf("password must be at least %d characters", minNewPasswordLen)
			}
			if err := app.setPassword(cmd.Context(), user.ID, password); err != nil {
				return err
			}
			app.logger.InfoContext(cmd.Context(), "password reset", slog.String("name", user.UserName))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password")
	return cmd
}

func watchCommand(st *cliState) *cobra.Command {
	var (
		userName string
		existing bool
	)
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Publish images dropped into DIR as posts",
		Long: "Watches DIR and publishes every new image file as a post by --user once the\n" +
			"file stops changing. With --existing, files already in DIR are published first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, closeApp, err := openApp(ctx, st)
			if err != nil {
				return err
			}
			defer closeApp()

			user, err := findUserByName(app.db.WithContext(ctx), userName)
			if err != nil {
				return err
			}
			publish := func(ctx context.Context, path string) error {
				post, err := app.publishFile(ctx, user.ID, path)
				if err != nil {
					return err
				}
				app.logger.DebugContext(ctx, "post created", slog.Uint64("post_id", uint64(post.ID)))
				return nil
			}

			dir := args[0]
			if existing {
				files, err := process.Scan(dir)
				if err != nil {
					return err
				}
				for _, f := range files {
					if err := publish(ctx, f); err != nil {
						app.logger.WarnContext(ctx, "publish failed", slog.String("file", f), slog.Any("error", err))
					}
				}
			}
			return process.Watch(ctx, dir, app.logger, publish)
		},
	}
	cmd.Flags().StringVar(&userName, "user", "", "handle of the user the posts belong to (required)")
	cmd.Flags().BoolVar(&existing, "existing", false, "publish files already present in DIR")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func pruneImagesCommand(st *cliState) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "prune-images",
		Short: "Remove uploaded images no user or post refers to",
		Long: "Prints every image under UPLOAD_BASE that no profile, cover or post uses.\n" +
			"Nothing is removed unless --yes is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, closeApp, err := openApp(ctx, st)
			if err != nil {
				return err
			}
			defer closeApp()

			orphans, err := app.pruneImages(ctx, !yes)
			if err != nil {
				return err
			}
			for _, url := range orphans {
				fmt.Fprintln(cmd.OutOrStdout(), url)
			}
			if !yes {
				app.logger.InfoContext(ctx, "dry run, pass --yes to remove", slog.Int("orphans", len(orphans)))
				return nil
			}
			app.logger.InfoContext(ctx, "pruned images", slog.Int("removed", len(orphans)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "remove the listed images")
	return cmd
}

func loadConfig(st *cliState) (*Config, *slog.Logger, error) {
	cfg, err := LoadConfig(st.envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if st.addr != "" {
		cfg.Port = st.addr
	}
	logger := initSlog(cfg, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openApp loads configuration and connects every dependency. The returned
// func releases them.
func openApp(ctx context.Context, st *cliState) (*App, func(), error) {
	cfg, logger, err := loadConfig(st)
	if err != nil {
		return nil, nil, err
	}
	db, err := openDB(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := migrate(db.WithContext(ctx), logger); err != nil {
			closeDB(db, logger)
			return nil, nil, err
		}
	}
	images, err := newImageHost(ctx, cfg)
	if err != nil {
		closeDB(db, logger)
		return nil, nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app := newApp(cfg, db, images, logger, reg)
	return app, func() { closeDB(db, logger) }, nil
}

func closeDB(db *gorm.DB, logger *slog.Logger) {
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		logger.Warn("failed to close database", slog.Any("error", err))
	}
}

func newImageHost(ctx context.Context, cfg *Config) (imagehost.Host, error) {
	switch cfg.ImageHost {
	case "s3":
		return imagehost.NewS3Host(ctx, imagehost.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
	default:
		return imagehost.NewLocalHost(cfg.UploadBase, cfg.PublicURL()+"/uploads")
	}
}

func findUserByName(db *gorm.DB, name string) (models.User, error) {
	var user models.User
	err := db.Select(models.PublicUserColumns).Where("user_name = ?", name).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, fmt.Errorf("user %q not found", name)
	}
	return user, err
}

func serve(ctx context.Context, st *cliState) error {
	app, closeApp, err := openApp(ctx, st)
	if err != nil {
		return err
	}
	defer closeApp()

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", app.cfg.Addr())
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           app.router(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		app.logger.InfoContext(ctx, "starting server...",
			slog.String("address", listener.Addr().String()),
			slog.String("env", app.cfg.Env),
		)
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	grp.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		app.logger.InfoContext(shutdownCtx, "shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	return grp.Wait()
}

// prompt reads one line from stdin, without echo when mask is set and stdin
// is a terminal.
func prompt(msg string, mask bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		if _, err := os.Stderr.WriteString(msg); err != nil {
			return "", err
		}
		if mask {
			b, err := term.ReadPassword(fd)
			_, _ = os.Stderr.WriteString("\n")
			return string(b), err
		}
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
