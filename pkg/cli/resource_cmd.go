package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

type diagnosisView struct {
	ResourceID     string   `json:"resource_id"`
	Kind           string   `json:"kind"`
	Name           string   `json:"name"`
	StoreStatus    string   `json:"store_status"`
	ExternalExists bool     `json:"external_exists"`
	ExternalWrite  bool     `json:"external_write"`
	Consistent     bool     `json:"consistent"`
	Findings       []string `json:"findings,omitempty"`
}

type lockStatusView struct {
	ResourceID string `json:"resource_id"`
	Locked     bool   `json:"locked"`
	Status     string `json:"status"`
}

func newResourceCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource",
		Short: "Operations on a single participant resource",
	}

	cmd.AddCommand(newResourceRecreateCmd(client))
	cmd.AddCommand(newResourceDeleteCmd(client))
	cmd.AddCommand(newResourceLockCmd(client))
	cmd.AddCommand(newResourceUnlockCmd(client))
	cmd.AddCommand(newResourceStatusCmd(client))
	cmd.AddCommand(newResourceDiagnoseCmd(client))

	return cmd
}

func newResourceRecreateCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "recreate <module-id> <account-id> <kind>",
		Short: "Recreate one participant's resource from scratch",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view resourceView
			path := fmt.Sprintf("/modules/%s/accounts/%s/resources/%s", args[0], args[1], args[2])
			if err := client.Call(http.MethodPost, path, nil, &view); err != nil {
				return err
			}
			return printResourceView(cmd, &view)
		},
	}
}

func newResourceDeleteCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <module-id> <account-id> <kind>",
		Short: "Delete one participant's resource",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/modules/%s/accounts/%s/resources/%s", args[0], args[1], args[2])
			if err := client.Call(http.MethodDelete, path, nil, nil); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, map[string]string{"status": "deleted"})
			}
			_, _ = fmt.Fprintln(os.Stdout, "Resource deleted.")
			return nil
		},
	}
}

func newResourceLockCmd(client *Client) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "lock <resource-id>",
		Short: "Lock a resource, freezing participant access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view resourceView
			body := map[string]string{"action": "lock", "reason": reason}
			if err := client.Call(http.MethodPost, "/resources/"+args[0]+"/lock", body, &view); err != nil {
				return err
			}
			return printResourceView(cmd, &view)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the lock")

	return cmd
}

func newResourceUnlockCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <resource-id>",
		Short: "Unlock a resource, restoring the original credential and access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view resourceView
			body := map[string]string{"action": "unlock"}
			if err := client.Call(http.MethodPost, "/resources/"+args[0]+"/lock", body, &view); err != nil {
				return err
			}
			return printResourceView(cmd, &view)
		},
	}
}

func newResourceStatusCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status <resource-id>",
		Short: "Show a resource's lock status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view lockStatusView
			if err := client.Call(http.MethodGet, "/resources/"+args[0]+"/lock", nil, &view); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, view)
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s: %s (locked=%t)\n", view.ResourceID, view.Status, view.Locked)
			return nil
		},
	}
}

func newResourceDiagnoseCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose <resource-id>",
		Short: "Compare a resource record against the external system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d diagnosisView
			if err := client.Call(http.MethodGet, "/resources/"+args[0]+"/diagnose", nil, &d); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, d)
			}
			state := "consistent"
			if !d.Consistent {
				state = "INCONSISTENT"
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s %s (%s): %s\n", d.Kind, d.Name, d.StoreStatus, state)
			for _, f := range d.Findings {
				_, _ = fmt.Fprintf(os.Stdout, "  - %s\n", f)
			}
			return nil
		},
	}
}

func printResourceView(cmd *cobra.Command, v *resourceView) error {
	if getOutputFormat(cmd) == "json" {
		return printJSON(os.Stdout, v)
	}
	rows := [][]string{{v.ID, v.Kind, v.Name, v.Server, v.Status}}
	printTable(os.Stdout, []string{"ID", "KIND", "NAME", "SERVER", "STATUS"}, rows)
	if v.LockedBy != "" {
		_, _ = fmt.Fprintf(os.Stdout, "\nLocked by %s at %s", v.LockedBy, v.LockedAt)
		if v.Reason != "" {
			_, _ = fmt.Fprintf(os.Stdout, ": %s", v.Reason)
		}
		_, _ = fmt.Fprintln(os.Stdout)
	}
	return nil
}
