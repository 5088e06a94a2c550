package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"hbk-go/internal/app"
	"hbk-go/internal/config"
	"hbk-go/internal/fakeapi"
	"hbk-go/internal/hbk"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// configPath returns the --config flag or the default location.
func configPath(cmd *cobra.Command) (string, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return "", nil, fmt.Errorf("getting defaults: %w", err)
	}
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, defaults, nil
	}
	return defaults["config_path"], defaults, nil
}

// newApp reads the config and creates an HbkApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Pin", "Download").
func newApp(cmd *cobra.Command, operation, backupID string) (*app.HbkApp, error) {
	path, _, err := configPath(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var opts []app.Option
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts = append(opts, app.WithLogEcho(os.Stderr))
	}

	a, err := app.NewHbkApp(cfg, app.NewOperation(operation, backupID), opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	return f
}

// readPassphrase prompts on a terminal, or reads one line from stdin.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv("HBK_PASSPHRASE"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question. Without a terminal the answer is no.
func confirm(question string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

var rootCmd = &cobra.Command{
	Use:          "hbk",
	Short:        "Manage add-on backups across the local and remote tier",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, defaults, err := configPath(cmd)
		if err != nil {
			return err
		}

		baseURL, _ := cmd.Flags().GetString("base-url")
		if baseURL == "" {
			baseURL = defaults["base_url"]
		}
		cfg := config.NewConfig(baseURL, defaults["base_dir"])
		if schema, _ := cmd.Flags().GetString("schema"); schema != "" {
			if _, err := hbk.LookupDecoder(schema); err != nil {
				return err
			}
			cfg.Schema = schema
		}

		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Base URL: %s\n", cfg.BaseURL)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _, err := configPath(cmd)
		if err != nil {
			return err
		}

		cfg, err := config.ReadFromFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base URL:   %s\n", cfg.BaseURL)
		fmt.Printf("Schema:     %s\n", cfg.Schema)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Timeout:    %s\n", cfg.Timeout)
		fmt.Printf("Retries:    %d\n", cfg.RetryMax)
		fmt.Printf("Journal:    %s %s\n", cfg.Journal.Type, cfg.Journal.DataDir)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		switch cfg.Download.Type {
		case "s3":
			fmt.Printf("Downloads:  s3://%s/%s\n", cfg.Download.S3Bucket, cfg.Download.S3Prefix)
		default:
			fmt.Printf("Downloads:  %s %s\n", cfg.Download.Type, cfg.Download.Dir)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "List", "")
		if err != nil {
			return err
		}
		defer a.Close()

		view, err := a.List(cmd.Context())
		if err != nil {
			return err
		}

		if pinned, _ := cmd.Flags().GetBool("pinned"); pinned {
			view = view.Pinned()
		}
		switch tier, _ := cmd.Flags().GetString("tier"); tier {
		case "":
		case "local":
			view = view.Local()
		case "remote":
			view = view.Remote()
		default:
			return fmt.Errorf("unknown tier %q (want local or remote)", tier)
		}
		return app.RenderBackups(os.Stdout, outputFormat(cmd), view, a.Now())
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show backup counts and sizes per tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Summary", "")
		if err != nil {
			return err
		}
		defer a.Close()

		summaries, err := a.Summary(cmd.Context())
		if err != nil {
			return err
		}
		return app.RenderSummary(os.Stdout, outputFormat(cmd), summaries)
	},
}

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Start a new full backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Create", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Create(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Backup %q started\n", args[0])
		return nil
	},
}

// idCommand builds a command that runs one service operation on a backup id.
func idCommand(use, short, operation, done string, run func(*app.HbkApp, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, operation, args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			if err := run(a, cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", done, args[0])
			return nil
		},
	}
}

var deleteCmd = idCommand("delete", "Delete a backup from every tier", "Delete", "Deleted", (*app.HbkApp).Delete)
var pinCmd = idCommand("pin", "Protect a backup from retention", "Pin", "Pinned", (*app.HbkApp).Pin)
var unpinCmd = idCommand("unpin", "Return a backup to normal retention", "Unpin", "Unpinned", (*app.HbkApp).Unpin)
var restoreCmd = idCommand("restore", "Restore a backup on the local host", "Restore", "Restore started for", (*app.HbkApp).Restore)

var downloadCmd = &cobra.Command{
	Use:   "download ID",
	Short: "Download a backup archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp(cmd, "Download", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		loc, err := a.Download(cmd.Context(), args[0], name)
		if err != nil {
			return err
		}
		fmt.Printf("Downloaded %s to %s\n", args[0], loc)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the backend's backup tracking state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm("Reset forgets every tracked backup. Continue?") {
			return fmt.Errorf("reset not confirmed (use --yes when not on a terminal)")
		}

		a, err := newApp(cmd, "Reset", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Backup state reset")
		return nil
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show when the next scheduled backup runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "NextBackup", "")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.NextBackup(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Next backup: %s\n", app.RenderDuration(d, a.Now()))
		return nil
	},
}

// settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View or change the backend's add-on settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show add-on settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SettingsGet", "")
		if err != nil {
			return err
		}
		defer a.Close()

		settings, err := a.Settings(cmd.Context())
		if err != nil {
			return err
		}
		return app.RenderSettings(os.Stdout, outputFormat(cmd), settings)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set KEY=VALUE...",
	Short: "Change add-on settings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SettingsSet", "")
		if err != nil {
			return err
		}
		defer a.Close()

		settings, err := a.UpdateSettings(cmd.Context(), args)
		if err != nil {
			return err
		}
		return app.RenderSettings(os.Stdout, outputFormat(cmd), settings)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View the operation journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		backupID, _ := cmd.Flags().GetString("backup")

		a, err := newApp(cmd, "History", backupID)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.History(limit, backupID)
		if err != nil {
			return err
		}
		return app.RenderHistory(os.Stdout, entries, a.Now())
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export DEST",
	Short: "Write a copy of the journal database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "HistoryExport", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ExportHistory(args[0]); err != nil {
			return err
		}
		fmt.Printf("Journal exported to %s\n", args[0])
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the encryption key pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "KeysInit", "")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		if term.IsTerminal(int(os.Stdin.Fd())) && os.Getenv("HBK_PASSPHRASE") == "" {
			again, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if again != passphrase {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := a.InitKeys(passphrase); err != nil {
			return err
		}
		fmt.Println("Encryption keys created")
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt NAME",
	Short: "Decrypt a downloaded archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("out")
		if outPath == "" {
			outPath = strings.TrimSuffix(args[0], ".enc")
			if outPath == args[0] {
				outPath += ".dec"
			}
		}

		a, err := newApp(cmd, "Decrypt", "")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		if err := a.Decrypt(cmd.Context(), args[0], passphrase, f); err != nil {
			f.Close()
			os.Remove(outPath)
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing output: %w", err)
		}
		fmt.Printf("Decrypted %s to %s\n", args[0], outPath)
		return nil
	},
}

var serveFakeCmd = &cobra.Command{
	Use:   "serve-fake",
	Short: "Run an in-memory backend for trying the client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		demo, _ := cmd.Flags().GetBool("demo")

		gin.SetMode(gin.ReleaseMode)
		clock := hbk.RealClock{}
		srv := fakeapi.New(hbk.UUIDGenerator{}, clock, app.NewConsoleLogger(os.Stderr, "fake"))
		if demo {
			srv.Seed(fakeapi.DemoRecords(clock.Now())...)
		}

		httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
		errCh := make(chan error, 1)
		go func() { errCh <- httpSrv.ListenAndServe() }()
		fmt.Fprintf(os.Stderr, "Fake backend listening on http://%s\n", addr)

		select {
		case err := <-errCh:
			return fmt.Errorf("serving: %w", err)
		case <-cmd.Context().Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default $HBK_CONFIG_PATH or ~/.config/hbk.toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Copy warnings and errors from the log to stderr")
	rootCmd.PersistentFlags().StringP("output", "o", app.FormatTable, "Output format: table, json or yaml")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("base-url", "", "Backend API address (default $HBK_BASE_URL)")
	configInitCmd.Flags().String("schema", "", "Wire schema: "+strings.Join(hbk.DecoderNames(), ", "))
	configCmd.AddCommand(configListCmd)

	// settings subcommands
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	// history subcommands
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	historyCmd.Flags().String("backup", "", "Only show operations on this backup id")

	keysCmd.AddCommand(keysInitCmd)

	listCmd.Flags().Bool("pinned", false, "Only show pinned backups")
	listCmd.Flags().String("tier", "", "Only show backups on a tier: local or remote")
	downloadCmd.Flags().String("name", "", "Archive name in the download store (default ID.tar)")
	resetCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	decryptCmd.Flags().String("out", "", "Output file (default NAME without .enc)")
	serveFakeCmd.Flags().String("addr", "127.0.0.1:8099", "Listen address")
	serveFakeCmd.Flags().Bool("demo", false, "Start with sample backups")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(unpinCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(serveFakeCmd)
}
