package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	sitesLat float64
	sitesLon float64
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List EPA Victoria monitoring sites",
	Long: `List the air monitoring sites the EPA publishes, or resolve the
site nearest to a coordinate pair when --lat and --lon are given.`,
	RunE: runSites,
}

func init() {
	sitesCmd.Flags().Float64Var(&sitesLat, "lat", 0, "latitude to resolve the nearest site for")
	sitesCmd.Flags().Float64Var(&sitesLon, "lon", 0, "longitude to resolve the nearest site for")
	sitesCmd.MarkFlagsRequiredTogether("lat", "lon")
	rootCmd.AddCommand(sitesCmd)
}

func runSites(cmd *cobra.Command, _ []string) error {
	client, err := newProviderClient()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if cmd.Flags().Changed("lat") {
		site, err := client.FindSite(ctx, sitesLat, sitesLon)
		if err != nil {
			return fmt.Errorf("find site: %w", err)
		}
		fmt.Printf("%s\t%s\t[%g, %g]\n", site.ID, site.Name, site.Lat, site.Lon)
		return nil
	}

	sites, err := client.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}
	for _, s := range sites {
		fmt.Printf("%s\t%s\n", s.ID, s.Name)
	}
	return nil
}
