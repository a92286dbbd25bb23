package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Create, fetch and list records",
	}
	cmd.AddCommand(
		newRecordsCreateCmd(opts),
		newRecordsGetCmd(opts),
		newRecordsListCmd(opts),
		newRecordsOpenCmd(opts),
	)
	return cmd
}

func newRecordsCreateCmd(opts *rootOptions) *cobra.Command {
	var owner, data string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a record for a patient (doctors only)",
		Long: "Create a record for a patient. --data takes a JSON object or @file.\n" +
			"The record key is not printed; fetch it with 'medctl access key <record-id>'.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readJSONArg(data)
			if err != nil {
				return err
			}
			body := map[string]any{"owner_id": owner, "data": raw}
			resp, err := opts.client().do(cmd.Context(), http.MethodPost, "/records", body, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "patient subject UUID")
	cmd.Flags().StringVar(&data, "data", "", "record content as a JSON object, or @path to a file")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newRecordsGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <record-id>",
		Short: "Show record metadata and sealed payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().do(cmd.Context(), http.MethodGet, "/records/"+args[0], nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newRecordsListCmd(opts *rootOptions) *cobra.Command {
	var authority bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the caller's records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/records"
			if authority {
				path = "/authorities/me/records"
			}
			resp, err := opts.client().do(cmd.Context(), http.MethodGet, path, nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().BoolVar(&authority, "authority", false, "list records created under the caller's health authority")
	return cmd
}

func newRecordsOpenCmd(opts *rootOptions) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "open <record-id>",
		Short: "Decrypt a record with its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"key": key}
			resp, err := opts.client().do(cmd.Context(), http.MethodPost, "/records/"+args[0]+"/open", body, nil)
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

// readJSONArg accepts inline JSON or @path and returns it undecoded.
func readJSONArg(arg string) (json.RawMessage, error) {
	raw := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if raw, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("--data is not valid JSON")
	}
	return raw, nil
}
