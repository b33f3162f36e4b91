package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/KenCoder/school-converter/internal/batch"
	"github.com/KenCoder/school-converter/internal/googleauth"
	"github.com/KenCoder/school-converter/internal/render"
	"github.com/KenCoder/school-converter/internal/store"
	"github.com/KenCoder/school-converter/internal/viewer"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "school-converter",
		Short: "Convert Common Cartridge exports into editable documents",
	}
	root.AddCommand(convertCmd(), serveCmd(), sessionsCmd())
	return root
}

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <cartridge>... <output-dir>",
		Short: "Convert one or more .imscc cartridges",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runConvert,
	}
	f := cmd.Flags()
	f.StringP("format", "f", string(render.FormatDocx), "Output format (docx, google_docs, google_forms, google_forms_api)")
	f.Bool("answer-key", false, "Also produce answer keys")
	f.Int("limit", 0, "Render at most N assessments (0 = no limit)")
	f.String("font-map", "", `Path to a JSON font map for docx output (the "*" key sets the output font)`)
	f.String("credentials", "", "Path to Google credentials JSON (required for Google formats)")
	f.String("drive-folder", "", "Drive folder id to move created forms into")
	f.Bool("no-history", false, "Do not record the session in the history store")
	f.String("db-driver", "sqlite", "Session history driver (sqlite, postgres)")
	f.String("db-dsn", "", "Session history DSN (driver default when empty)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a finished session to the viewer UI",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("output", "o", "output", "Output directory to serve")
	f.String("db-driver", "sqlite", "Session history driver (sqlite, postgres)")
	f.String("db-dsn", "", "Session history DSN (driver default when empty)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded conversion sessions",
		RunE:  runSessions,
	}
	f := cmd.Flags()
	f.String("db-driver", "sqlite", "Session history driver (sqlite, postgres)")
	f.String("db-dsn", "", "Session history DSN (driver default when empty)")
	f.Bool("json", false, "Emit JSON instead of a table")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SCHOOL_CONVERTER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("school-converter")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/school-converter")
	v.AddConfigPath("/etc/school-converter")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runConvert(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	format, err := render.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}

	opts := render.Options{}
	if p := v.GetString("font-map"); p != "" {
		fm, err := loadFontMap(p)
		if err != nil {
			return err
		}
		opts.FontMap = fm
	}
	opts.DriveFolderID = v.GetString("drive-folder")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if scopes := scopesForFormat(format); scopes != nil {
		credsPath := v.GetString("credentials")
		if credsPath == "" {
			return fmt.Errorf("format %s requires --credentials", format)
		}
		creds, err := googleauth.FromFile(ctx, credsPath, scopes...)
		if err != nil {
			return err
		}
		opts.Credentials = creds
	}

	renderer, err := render.New(format, opts)
	if err != nil {
		return err
	}

	driver := batch.New(renderer, format)
	driver.AnswerKey = v.GetBool("answer-key")
	driver.Limit = v.GetInt("limit")

	inputs, outDir := args[:len(args)-1], args[len(args)-1]
	report, err := driver.Run(ctx, inputs, outDir)
	if err != nil && report == nil {
		return err
	}

	if !v.GetBool("no-history") {
		saveReport(ctx, v, report)
	}

	ok, failedCount := report.Counts()
	fmt.Printf("Session %s: %s. %d rendered, %d failed, %d skipped.\n",
		report.SessionID, report.State, ok, failedCount, len(report.Skipped))
	for _, cs := range report.Cartridges {
		if cs.Status != "ok" {
			fmt.Printf("  cartridge %s failed: %s\n", cs.Name, cs.Error)
		}
	}

	if report.State == batch.StateAborted {
		return fmt.Errorf("session aborted")
	}
	for _, cs := range report.Cartridges {
		if cs.Status != "ok" {
			return fmt.Errorf("one or more cartridges failed")
		}
	}
	return nil
}

// saveReport records the session in the history store. History being
// unavailable does not fail the conversion.
func saveReport(ctx context.Context, v *viper.Viper, report *batch.Report) {
	db, err := store.Open(ctx, store.Driver(v.GetString("db-driver")), v.GetString("db-dsn"))
	if err != nil {
		slog.Warn("session history unavailable", "error", err)
		return
	}
	defer db.Close()

	data, err := json.Marshal(report)
	if err != nil {
		slog.Warn("encoding session report failed", "error", err)
		return
	}
	err = store.NewSessions(db).Save(ctx, store.Session{
		ID:        report.SessionID,
		CreatedAt: report.StartedAt,
		Format:    string(report.Format),
		OutputDir: report.OutputDir,
		State:     string(report.State),
		Report:    data,
	})
	if err != nil {
		slog.Warn("saving session failed", "error", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx := context.Background()
	var sessions *store.Sessions
	db, err := store.Open(ctx, store.Driver(v.GetString("db-driver")), v.GetString("db-dsn"))
	if err != nil {
		slog.Warn("session history unavailable", "error", err)
	} else {
		defer db.Close()
		sessions = store.NewSessions(db)
	}

	srv := viewer.NewServer(v.GetString("output"), sessions)
	addr := v.GetString("addr")
	slog.Info("starting viewer", "addr", addr, "output", v.GetString("output"))
	return http.ListenAndServe(addr, srv.Routes())
}

func runSessions(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx := context.Background()
	db, err := store.Open(ctx, store.Driver(v.GetString("db-driver")), v.GetString("db-dsn"))
	if err != nil {
		return fmt.Errorf("open session history: %w", err)
	}
	defer db.Close()

	list, err := store.NewSessions(db).List(ctx)
	if err != nil {
		return err
	}

	if v.GetBool("json") {
		data, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	for _, s := range list {
		fmt.Printf("%s  %s  %-16s  %-8s  %s\n",
			s.ID, s.CreatedAt.Format(time.RFC3339), s.Format, s.State, s.OutputDir)
	}
	return nil
}

// loadFontMap reads a {"*": "Font Name", ...} JSON file.
func loadFontMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font map: %w", err)
	}
	var fm map[string]string
	if err := json.Unmarshal(data, &fm); err != nil {
		return nil, fmt.Errorf("parse font map %s: %w", path, err)
	}
	return fm, nil
}

func scopesForFormat(f render.Format) []string {
	switch f {
	case render.FormatGoogleDocs:
		return render.DocScopes
	case render.FormatGoogleFormsAPI:
		return render.FormScopes
	}
	return nil
}
