package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCallCommand(ctx *commandContext) *cobra.Command {
	var paramsJSON string

	cmd := &cobra.Command{
		Use:   "call <action> [key=value ...]",
		Short: "Call a node RPC action and print the JSON result",
		Example: `  nanorpc call block_count
  nanorpc call account_balance account=nano_1abc...
  nanorpc call accounts_balances --params-json '{"accounts":["nano_1abc..."]}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(paramsJSON, args[1:])
			if err != nil {
				return err
			}
			client, flush, err := ctx.rpcClient(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer flush()

			var result json.RawMessage
			if err := client.Call(cmd.Context(), args[0], params, &result); err != nil {
				return err
			}
			return writeRawJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&paramsJSON, "params-json", "", "Parameters as a JSON object; key=value arguments override its keys")
	return cmd
}

// parseParams merges a JSON object with key=value pairs. Values stay strings, as the node
// expects.
func parseParams(paramsJSON string, pairs []string) (map[string]any, error) {
	params := make(map[string]any)
	if strings.TrimSpace(paramsJSON) != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			return nil, fmt.Errorf("--params-json: %w", err)
		}
		if params == nil {
			return nil, fmt.Errorf("--params-json: expected a JSON object")
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func writeRawJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
