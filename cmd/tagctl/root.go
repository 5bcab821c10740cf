package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	c := &client{}

	root := &cobra.Command{
		Use:           "tagctl",
		Short:         "Drive a tagbridge service from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.addr, "addr", envOr("TAGBRIDGE_ADDR", "http://localhost:8080"), "Service base URL (defaults TAGBRIDGE_ADDR)")
	root.PersistentFlags().StringVar(&c.apiKey, "api-key", envOr("TAGBRIDGE_API_KEY", "app-key-123"), "X-API-Key sent with every request (defaults TAGBRIDGE_API_KEY)")

	execCmd := &cobra.Command{
		Use:   "exec <action> [args...]",
		Short: "Run one bridge action",
		Long: "Run one bridge action. Each argument is parsed as JSON when it is valid JSON\n" +
			"and sent as a string otherwise.",
		Example: "  tagctl exec initGTM GTM-EXAMPLE 30\n" +
			"  tagctl exec trackEvent video play intro 3\n" +
			"  tagctl exec pushAddToCart '{\"id\":\"p1\",\"name\":\"Shoe\",\"price\":\"19.99\"}' EUR",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.exec(cmd.Context(), args[0], parseArgs(args[1:]))
			if err != nil {
				return err
			}
			if !res.OK {
				return fmt.Errorf("%s", res.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}

	var wait time.Duration
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Show the bridge session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/session"
			if wait > 0 {
				path += "?wait=" + wait.String()
			}
			return c.getJSON(cmd.Context(), path, cmd.OutOrStdout())
		},
	}
	sessionCmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for a pending initGTM")

	dataLayerCmd := &cobra.Command{
		Use:   "datalayer",
		Short: "Print the current data layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.getJSON(cmd.Context(), "/datalayer", cmd.OutOrStdout())
		},
	}

	root.AddCommand(execCmd, sessionCmd, dataLayerCmd)
	return root
}

// parseArgs turns command-line words into bridge arguments.
func parseArgs(words []string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(words))
	for _, w := range words {
		if json.Valid([]byte(w)) {
			out = append(out, json.RawMessage(w))
			continue
		}
		b, _ := json.Marshal(w)
		out = append(out, b)
	}
	return out
}
