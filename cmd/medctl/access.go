package main

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	accesshandler "medvault/internal/access/handler"
)

func newAccessCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Request, decide and use access to records",
	}
	cmd.AddCommand(
		newAccessRequestCmd(opts),
		newAccessDecisionCmd(opts, "approve", "Approve a pending request (record owner)"),
		newAccessDecisionCmd(opts, "decline", "Decline a pending request (record owner)"),
		newAccessDecisionCmd(opts, "withdraw", "Withdraw your pending request"),
		newAccessListCmd(opts, "inbox", "Requests for records you own"),
		newAccessListCmd(opts, "outbox", "Requests you made"),
		newAccessKeyCmd(opts),
	)
	return cmd
}

func newAccessRequestCmd(opts *rootOptions) *cobra.Command {
	var idempotencyKey string
	cmd := &cobra.Command{
		Use:   "request <record-id>",
		Short: "Ask a record's owner for access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var header http.Header
			if idempotencyKey != "" {
				header = http.Header{accesshandler.IdempotencyKeyHeader: {idempotencyKey}}
			}
			resp, err := opts.client().do(cmd.Context(), http.MethodPost, "/records/"+args[0]+"/access-requests", nil, header)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "replay-safe client key")
	return cmd
}

func newAccessDecisionCmd(opts *rootOptions, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().do(cmd.Context(), http.MethodPost, "/access-requests/"+args[0]+"/"+action, nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newAccessListCmd(opts *rootOptions, box, short string) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   box,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/access-requests/" + box
			if state != "" {
				path += "?" + url.Values{"state": {state}}.Encode()
			}
			resp, err := opts.client().do(cmd.Context(), http.MethodGet, path, nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "requested, granted, declined or withdrawn")
	return cmd
}

func newAccessKeyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "key <record-id>",
		Short: "Retrieve a record key you hold a grant for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().do(cmd.Context(), http.MethodGet, "/records/"+args[0]+"/key", nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}
