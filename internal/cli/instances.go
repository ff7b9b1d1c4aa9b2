package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newInstancesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List EC2 instances in the configured account",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/instances")
			if err != nil {
				return fmt.Errorf("list instances: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No instances found.")
				return nil
			}

			fmt.Printf("%-22s  %-12s  %-14s  %s\n", "ID", "STATE", "TYPE", "NAME")
			fmt.Printf("%-22s  %-12s  %-14s  %s\n", "----", "-----", "----", "----")
			for _, inst := range data {
				id, _ := inst["id"].(string)
				state, _ := inst["state"].(string)
				instType, _ := inst["type"].(string)
				name, _ := inst["name"].(string)
				fmt.Printf("%-22s  %-12s  %-14s  %s\n", id, state, instType, name)
			}
			return nil
		},
	}

	cmd.AddCommand(
		newInstanceActionCmd("start", "Start a stopped instance"),
		newInstanceActionCmd("stop", "Stop a running instance"),
	)
	return cmd
}

func newInstanceActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <instance-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			if _, err := client.Post("/api/instances/"+id+"/toggle", map[string]string{
				"action": action,
			}); err != nil {
				return fmt.Errorf("%s instance: %w", action, err)
			}

			fmt.Printf("Instance %s: %s requested\n", id, action)
			return nil
		},
	}
}
