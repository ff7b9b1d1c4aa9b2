package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newSchedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "List weekly start/stop schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/schedules/")
			if err != nil {
				return fmt.Errorf("list schedules: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No schedules found.")
				return nil
			}

			fmt.Printf("%-14s  %-22s  %-6s  %-6s  %-22s  %s\n", "ID", "INSTANCE", "START", "STOP", "DAYS", "ACTIVE")
			fmt.Printf("%-14s  %-22s  %-6s  %-6s  %-22s  %s\n", "----", "--------", "-----", "----", "----", "------")
			for _, sch := range data {
				id, _ := sch["id"].(string)
				instanceID, _ := sch["instance_id"].(string)
				start, _ := sch["start_time"].(string)
				stop, _ := sch["stop_time"].(string)
				days, _ := sch["days"].([]any)
				active, _ := sch["active"].(bool)
				fmt.Printf("%-14s  %-22s  %-6s  %-6s  %-22s  %v\n", id, instanceID, start, stop, formatDays(days), active)
			}
			return nil
		},
	}

	cmd.AddCommand(
		newScheduleCreateCmd(),
		newScheduleActiveCmd("enable", true),
		newScheduleActiveCmd("disable", false),
		newScheduleDeleteCmd(),
	)
	return cmd
}

func newScheduleCreateCmd() *cobra.Command {
	var instanceID, start, stop, days string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a weekly schedule for an instance",
		Long:  "Create a schedule that starts and stops an instance at fixed times on selected weekdays (0=Sunday .. 6=Saturday).",
		RunE: func(cmd *cobra.Command, args []string) error {
			dayList, err := parseDays(days)
			if err != nil {
				return err
			}

			resp, err := client.Post("/api/schedules/", map[string]any{
				"instance_id": instanceID,
				"start_time":  start,
				"stop_time":   stop,
				"days":        dayList,
			})
			if err != nil {
				return fmt.Errorf("create schedule: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("Schedule created: %s\n", data["id"])
			return nil
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "EC2 instance ID (required)")
	cmd.Flags().StringVar(&start, "start", "", "Start time as HH:MM (required)")
	cmd.Flags().StringVar(&stop, "stop", "", "Stop time as HH:MM (required)")
	cmd.Flags().StringVar(&days, "days", "1,2,3,4,5", "Comma-separated weekdays, 0=Sunday .. 6=Saturday")
	cmd.MarkFlagRequired("instance")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("stop")
	return cmd
}

func newScheduleActiveCmd(verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <schedule-id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			if _, err := client.Patch("/api/schedules/"+id, map[string]bool{
				"active": active,
			}); err != nil {
				return fmt.Errorf("%s schedule: %w", verb, err)
			}

			fmt.Printf("Schedule %s %sd\n", id, verb)
			return nil
		},
	}
}

func newScheduleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <schedule-id>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			if _, err := client.Delete("/api/schedules/" + id); err != nil {
				return fmt.Errorf("delete schedule: %w", err)
			}

			fmt.Printf("Schedule %s deleted\n", id)
			return nil
		},
	}
}

// parseDays converts "1,2,3" into weekday numbers, validating the 0..6 range.
func parseDays(s string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("invalid weekday %q (use 0=Sunday .. 6=Saturday)", part)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one weekday is required")
	}
	return days, nil
}

func formatDays(days []any) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		n, ok := d.(float64)
		if !ok || n < 0 || n > 6 {
			continue
		}
		names = append(names, time.Weekday(int(n)).String()[:3])
	}
	return strings.Join(names, ",")
}
