package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// batchResult mirrors the server's bulk-sweep response.
type batchResult struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Details    []itemResult `json:"details"`
}

type itemResult struct {
	AccountID  string `json:"account_id"`
	Login      string `json:"login"`
	ResourceID string `json:"resource_id,omitempty"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
}

// resourceView mirrors the server's resource record shape.
type resourceView struct {
	ID        string `json:"id"`
	ModuleID  string `json:"module_id"`
	AccountID string `json:"account_id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Server    string `json:"server"`
	Status    string `json:"status"`
	LockedAt  string `json:"locked_at,omitempty"`
	LockedBy  string `json:"locked_by,omitempty"`
	Reason    string `json:"lock_reason,omitempty"`
}

func newModuleCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Bulk operations over a module's participant roster",
	}

	cmd.AddCommand(newModuleProvisionCmd(client))
	cmd.AddCommand(newModuleTeardownCmd(client))
	cmd.AddCommand(newModuleResourcesCmd(client))

	return cmd
}

func newModuleProvisionCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "provision <module-id> <kind>",
		Short: "Provision a resource of the given kind for every participant",
		Long: "Sweeps the module's roster and provisions one resource per participant. " +
			"Participants that already have the resource get it recreated from scratch.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result batchResult
			path := fmt.Sprintf("/modules/%s/resources/%s", args[0], args[1])
			if err := client.Call(http.MethodPost, path, nil, &result); err != nil {
				return err
			}
			return printBatchResult(cmd, &result)
		},
	}
}

func newModuleTeardownCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "teardown <module-id> <kind>",
		Short: "Delete every resource of the given kind in a module",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result batchResult
			path := fmt.Sprintf("/modules/%s/resources/%s", args[0], args[1])
			if err := client.Call(http.MethodDelete, path, nil, &result); err != nil {
				return err
			}
			return printBatchResult(cmd, &result)
		},
	}
}

func newModuleResourcesCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "resources <module-id>",
		Short: "List the resource records of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var views []resourceView
			path := fmt.Sprintf("/modules/%s/resources", args[0])
			if err := client.Call(http.MethodGet, path, nil, &views); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, views)
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				status := v.Status
				if v.LockedBy != "" {
					status += " (by " + v.LockedBy + ")"
				}
				rows = append(rows, []string{v.ID, v.Kind, v.Name, v.Server, status})
			}
			printTable(os.Stdout, []string{"ID", "KIND", "NAME", "SERVER", "STATUS"}, rows)
			return nil
		},
	}
}

func printBatchResult(cmd *cobra.Command, result *batchResult) error {
	if getOutputFormat(cmd) == "json" {
		return printJSON(os.Stdout, result)
	}
	rows := make([][]string, 0, len(result.Details))
	for _, item := range result.Details {
		status := "ok"
		if !item.Success {
			status = "FAILED"
		}
		rows = append(rows, []string{item.Login, item.ResourceID, status, item.Message})
	}
	printTable(os.Stdout, []string{"LOGIN", "RESOURCE", "STATUS", "MESSAGE"}, rows)
	_, _ = fmt.Fprintf(os.Stdout, "\n%d total, %d successful, %d failed\n",
		result.Total, result.Successful, result.Failed)
	return nil
}
