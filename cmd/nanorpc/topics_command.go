package main

import (
	"fmt"

	"github.com/lightforgemedia/go-nanorpc/internal/config"
	"github.com/lightforgemedia/go-nanorpc/pkg/ws"
	"github.com/spf13/cobra"
)

func newTopicsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "topics",
		Short:       "List the WebSocket topics the node publishes",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			topics := ws.KnownTopics()
			rows := make([][]string, 0, len(topics))
			for _, t := range topics {
				rows = append(rows, []string{t.Name, "ws." + t.Model, t.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Topic", "Message", "Description"}, rows, nil))
			return nil
		},
	}
}

func newEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "env",
		Short:       "Describe the environment variables read by the configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
			return nil
		},
	}
}
