package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var fetchSiteID string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the current observation for a site",
	Long: `Perform a one-shot fetch against the EPA API and print the
normalized observation as JSON.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchSiteID, "site", "", "monitoring site ID")
	_ = fetchCmd.MarkFlagRequired("site")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	client, err := newProviderClient()
	if err != nil {
		return err
	}

	obs, err := client.FetchObservation(cmd.Context(), fetchSiteID)
	if err != nil {
		return fmt.Errorf("fetch observation: %w", err)
	}

	out, err := json.MarshalIndent(obs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
