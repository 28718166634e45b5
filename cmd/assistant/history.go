package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/jayesh4work/audio-assistant-extension/internal/history"
)

var historyServer string

// History lives in the serving process's session, so these commands talk to
// a running "assistant serve".
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the transcript history of a running server",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transcripts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var body struct {
			Total    int                  `json:"total"`
			Capacity int                  `json:"capacity"`
			Items    []history.Transcript `json:"items"`
		}
		resp, err := historyClient().R().SetContext(cmd.Context()).SetResult(&body).Get("/history")
		if err := checkResponse(resp, err); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tPROVIDER\tLANGUAGE\tDURATION\tTRANSCRIPT")
		for _, item := range body.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.1fs\t%s\n",
				item.Timestamp.Format(time.RFC3339Nano), item.Provider, item.Language, item.Duration, item.Transcript)
		}
		fmt.Fprintf(w, "\n%d of %d\n", body.Total, body.Capacity)
		return w.Flush()
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every transcript",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := historyClient().R().SetContext(cmd.Context()).Delete("/history")
		return checkResponse(resp, err)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete TIMESTAMP",
	Short: "Remove the transcript with the given RFC 3339 timestamp",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := history.ParseTimestamp(args[0]); err != nil {
			return err
		}
		resp, err := historyClient().R().SetContext(cmd.Context()).Delete("/history/" + url.PathEscape(args[0]))
		return checkResponse(resp, err)
	},
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyServer, "server", "",
		"API base URL (default from http.address and http.port)")
	historyCmd.AddCommand(historyListCmd, historyClearCmd, historyDeleteCmd)
}

func historyClient() *resty.Client {
	base := historyServer
	if base == "" {
		base = "http://" + cfg.HTTP.ListenAddr()
	}
	return resty.New().
		SetBaseURL(base).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")
}

// checkResponse turns a transport failure or a JSON error body into an error.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if json.Unmarshal(resp.Body(), &body) == nil && body.Error != "" {
		return fmt.Errorf("%s (%s)", body.Error, body.Kind)
	}
	fmt.Fprintln(os.Stderr, resp.String())
	return fmt.Errorf("server returned %s", resp.Status())
}
