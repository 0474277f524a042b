package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"amcam/internal/client"
	"amcam/internal/config"
	"amcam/internal/download"
	"amcam/internal/logging"
	"amcam/internal/metrics"
	"amcam/internal/search"
	"amcam/pkg/models"
)

const version = "1.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "amcam",
	Short: "Download recorded media files from an Amcrest camera",
	Long: `Searches the camera's SD card for recordings of one media type within a
time range and downloads each one into the output directory, named after
its start time ("2020-09-17 11.10.52.jpg").`,
	Example: `  amcam -m mp4 -s "2020-10-10 12:00:00" -e "2020-10-10 23:59:59"
  amcam -a 10.0.0.20:80 -u admin -p secret -s 2020-10-10`,
	Version:       version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		log := logging.New(os.Stderr, cfg.Debug).With("run", uuid.NewString())
		return runSearch(cmd.Context(), cfg, cmd.OutOrStdout(), log)
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	var ue *config.UsageError
	if errors.As(err, &ue) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprint(os.Stderr, rootCmd.UsageString())
	}
	os.Exit(exitCode(err))
}

func init() {
	cobra.OnInitialize(func() { config.InitConfig(cfgFile) })

	rootCmd.SetVersionTemplate("amcam Version {{.Version}}\n")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &config.UsageError{Code: 2, Msg: err.Error()}
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.amcam.yaml)")
	rootCmd.PersistentFlags().Bool(config.KeyJSON, false, "Print a JSON run summary on stdout")

	f := rootCmd.Flags()
	f.StringP(config.KeyAddr, "a", config.DefaultAddr, "Camera IP address and port")
	f.IntP(config.KeyChannel, "c", 0, "Channel")
	f.BoolP(config.KeyDebug, "d", false, "Turn debug output on")
	f.StringP(config.KeyEnd, "e", "", "End time for search (default: end of the start day)")
	f.StringP(config.KeyFile, "f", "", "Input filename (not used)")
	f.StringP(config.KeyMedia, "m", config.DefaultMedia, "Media type (jpg, mp4, ...)")
	f.IntP(config.KeyNumber, "n", config.DefaultNumber, "Maximum number of files to request per page")
	f.StringP(config.KeyPassword, "p", config.DefaultPassword, "Password")
	f.StringP(config.KeyStart, "s", "", "Start time for search, YYYY-MM-DD[ HH:MM:SS]")
	f.StringP(config.KeyUser, "u", config.DefaultUser, "Username")
	f.String(config.KeyAuth, client.AuthDigest, "HTTP auth scheme: digest or basic")
	f.Duration(config.KeyTimeout, client.DefaultTimeout, "Per-request timeout")
	f.Int(config.KeyRetries, download.DefaultAttempts, "Download attempts per file before aborting")
	f.String(config.KeyOutputDir, ".", "Directory downloaded files are written to")
	f.String(config.KeyMetricsFile, "", "Write run metrics in Prometheus textfile format to this path")

	bind := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(fl *pflag.Flag) {
			if fl.Name == "config" {
				return
			}
			_ = viper.BindPFlag(fl.Name, fl)
		})
	}
	bind(rootCmd.PersistentFlags())
	bind(rootCmd.Flags())
}

// runSearch wires the camera client, downloader and driver for cfg and runs
// one search over the configured range.
func runSearch(ctx context.Context, cfg config.Config, stdout io.Writer, log *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	api := client.New(client.ClientConfig{
		Addr:     cfg.Addr,
		Username: cfg.User,
		Password: cfg.Password,
		Auth:     cfg.Auth,
		Timeout:  cfg.Timeout,
		Logger:   log,
	})
	dl := download.New(api, download.Config{
		Dir:      cfg.OutputDir,
		Media:    cfg.Media,
		Attempts: cfg.Retries,
		Logger:   log,
	})
	m := metrics.New(cfg.Media, strconv.Itoa(cfg.Channel))
	drv := search.NewDriver(api, dl, m, log)

	req := search.Request{
		Channel:  cfg.Channel,
		Media:    cfg.Media,
		Start:    cfg.Start,
		End:      cfg.End,
		MaxFiles: cfg.Number,
	}
	runErr := drv.Run(ctx, req)
	if runErr != nil {
		log.Error("aborting", "error", runErr, "exit", exitCode(runErr))
	}

	if err := m.Finish(cfg.MetricsFile, runErr); err != nil {
		log.Warn("could not write metrics", "path", cfg.MetricsFile, "error", err)
	}

	if cfg.JSON {
		st := drv.State()
		summary := models.RunSummary{
			Start:      models.FormatCameraTime(cfg.Start),
			End:        models.FormatCameraTime(cfg.End),
			Media:      cfg.Media,
			Windows:    st.Windows,
			Found:      st.Found,
			Downloaded: st.Downloaded,
			SkippedFTP: st.SkippedFTP,
			Bytes:      st.Bytes,
			Files:      st.Files,
		}
		if runErr != nil {
			summary.Error = runErr.Error()
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Warn("could not encode summary", "error", err)
		}
	}

	return runErr
}
