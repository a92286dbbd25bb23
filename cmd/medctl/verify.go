package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "verify <record-id>",
		Short: "Check a record against its ledger anchor",
		Long: "Decrypts the record with --key and compares its fingerprint with the anchored one.\n" +
			"Outcomes are valid, invalid or indeterminate; indeterminate results say whether a retry may help.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"key": key}
			resp, err := opts.client().do(cmd.Context(), http.MethodPost, "/records/"+args[0]+"/verify", body, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "base64 record key")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
