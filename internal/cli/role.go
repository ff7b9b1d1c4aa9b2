package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Show the configured AWS role",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/role")
			if err != nil {
				return fmt.Errorf("get role: %w", err)
			}

			if string(resp.Data) == "null" {
				fmt.Println("No AWS role configured. Run 'hibernate role set <role-arn>'.")
				return nil
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			roleARN, _ := data["role_arn"].(string)
			region, _ := data["region"].(string)
			fmt.Printf("Role:   %s\n", roleARN)
			fmt.Printf("Region: %s\n", region)
			return nil
		},
	}

	cmd.AddCommand(newRoleSetCmd())
	return cmd
}

func newRoleSetCmd() *cobra.Command {
	var region string

	cmd := &cobra.Command{
		Use:   "set <role-arn>",
		Short: "Configure the cross-account AWS role to assume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"role_arn": args[0]}
			if region != "" {
				body["region"] = region
			}

			resp, err := client.Post("/api/role", body)
			if err != nil {
				return fmt.Errorf("set role: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("Role configured: %s (region %s)\n", data["role_arn"], data["region"])
			return nil
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "AWS region for the role (default ap-south-1)")
	return cmd
}
