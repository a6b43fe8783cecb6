package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/airpulse/airpulse/internal/airquality/epavic"
	"github.com/airpulse/airpulse/internal/config"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "airpulse",
	Short: "AirPulse - EPA Victoria air quality monitor",
	Long: `AirPulse polls the EPA Victoria air monitoring API on a schedule,
caches the latest observations on disk, and serves them over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// newProviderClient builds an EPA client from the provider environment
// alone. Lookup commands use it so they work without a full daemon
// configuration.
func newProviderClient() (*epavic.Client, error) {
	pcfg, err := config.LoadProvider()
	if err != nil {
		return nil, err
	}

	return epavic.NewClient(epavic.ClientConfig{
		BaseURL:      pcfg.BaseURL,
		APIKey:       pcfg.APIKey,
		UserAgent:    userAgent(pcfg),
		FetchTimeout: pcfg.FetchTimeout,
		MaxTries:     pcfg.MaxTries,
		BaseBackoff:  pcfg.BaseBackoff,
		JitterMax:    pcfg.JitterMax,
		Logger:       zerolog.New(os.Stderr).Level(zerolog.WarnLevel),
	}), nil
}

// userAgent identifies this build to the API gateway unless the
// configuration overrides it.
func userAgent(pcfg config.ProviderConfig) string {
	if pcfg.UserAgent != "" {
		return pcfg.UserAgent
	}
	return "airpulse/" + Version
}
