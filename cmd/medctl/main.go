// Command medctl drives the medvault API from a terminal: it mints development
// tokens, creates and lists records, runs the access request workflow and
// verifies records against the ledger.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	server  string
	token   string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "medctl",
		Short:         "medvault command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("MEDVAULT_URL", "http://localhost:8080"), "medvault base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("MEDVAULT_TOKEN"), "bearer token (see medctl token)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP timeout")

	cmd.AddCommand(
		newTokenCmd(),
		newRecordsCmd(opts),
		newAccessCmd(opts),
		newVerifyCmd(opts),
		newAuditCmd(opts),
	)
	return cmd
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.server, o.token, o.timeout)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
