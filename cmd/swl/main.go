package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/screenerlab/swl/pkg/swl/api"
	"github.com/screenerlab/swl/pkg/swl/columns"
	"github.com/screenerlab/swl/pkg/swl/enrich"
	"github.com/screenerlab/swl/pkg/swl/render"
	"github.com/screenerlab/swl/pkg/swl/source"
	"github.com/screenerlab/swl/pkg/swl/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "swl",
		Short: "Watchlists over the screener backend's profile cache",
		Long: "swl renders stock watchlists and tracks the backend's profile refresh\n" +
			"jobs: start, resume, cancel and watch them from the terminal.",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			return setupLogging()
		},
	}
	root.PersistentFlags().String("base-url", "", "backend base URL (default http://localhost:8000)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	_ = viper.BindPFlag("api.base_url", root.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newListCmd(),
		newStatusCmd(),
		newRunCmd(),
		newResumeCmd(),
		newCancelCmd(),
		newWatchCmd(),
		newSymbolsCmd(),
	)
	return root
}

func initConfig() error {
	viper.SetDefault("api.base_url", "http://localhost:8000")
	viper.SetDefault("api.timeout", "30s")
	viper.SetDefault("poll.interval", "1s")
	viper.SetDefault("poll.fetch_timeout", "5s")
	viper.SetDefault("refresh.wait_sec", 0.5)
	viper.SetDefault("cache.ttl", "5m")
	viper.SetDefault("render.max_col_width", 0)
	viper.SetDefault("log.level", "warn")

	viper.SetEnvPrefix("SWL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("swl")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "swl"))
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "failed to read config file")
		}
	}
	return nil
}

func setupLogging() error {
	log.SetOutput(os.Stderr)
	level, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	log.SetLevel(level)
	return nil
}

func newClient() *api.Client {
	return api.NewClient(
		viper.GetString("api.base_url"),
		api.WithTimeout(viper.GetDuration("api.timeout")),
	)
}

func newProfiles(client *api.Client) enrich.ProfileService {
	svc := enrich.NewAPIService(client, viper.GetDuration("api.timeout"))
	return enrich.NewCachedService(svc, viper.GetDuration("cache.ttl"), 4096)
}

// loadRows loads the symbols a refresh should track: a watchlist file or
// directory when given, the backend's symbol cache otherwise.
func loadRows(ctx context.Context, client *api.Client, path string) ([]types.Row, error) {
	var (
		lists []types.Watchlist
		err   error
	)
	if path != "" {
		lists, err = source.YAMLSource{}.Load(ctx, path)
	} else {
		lists, err = source.APISource{Client: client}.Load(ctx, "")
	}
	if err != nil {
		return nil, err
	}
	return types.FlattenRows(lists), nil
}

func chooseRenderer(asJSON, asSyms bool, svcs columns.Services) render.Renderer {
	switch {
	case asSyms:
		return render.NewSymsRenderer()
	case asJSON:
		return render.NewJSONRenderer()
	default:
		return render.NewTableRenderer(svcs)
	}
}

func parseStatuses(names []string) ([]types.RefreshStatus, error) {
	out := make([]types.RefreshStatus, 0, len(names))
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "":
		case "updated":
			out = append(out, types.StatusUpdated)
		case "failed":
			out = append(out, types.StatusFailed)
		case "pending", "not-attempted":
			out = append(out, types.StatusNotAttempted)
		default:
			return nil, errors.Errorf("unknown status %q (want updated, failed or pending)", n)
		}
	}
	return out, nil
}

// maxColWidth picks the configured column width cap, sized down on narrow
// terminals.
func maxColWidth() int {
	if w := viper.GetInt("render.max_col_width"); w > 0 {
		return w
	}
	if w := detectTerminalWidth(); w > 0 && w/4 < 40 {
		if w/4 < 16 {
			return 16
		}
		return w / 4
	}
	return 40
}

func envColumns() int {
	if cols, ok := os.LookupEnv("COLUMNS"); ok {
		if n, err := strconv.Atoi(cols); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func limitPtr(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
