package main

import (
	"github.com/spf13/cobra"
)

func execCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Inspect and control executions",
	}
	cmd.AddCommand(execListTrxsCmd())
	cmd.AddCommand(execCancelCmd())
	cmd.AddCommand(execRecoverCmd())
	return cmd
}

func execListTrxsCmd() *cobra.Command {
	var executionID string
	cmd := &cobra.Command{
		Use:   "list-trxs",
		Short: "List the transactions of an execution with their statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := newClient().do("GET", "/api/executions/"+executionID+"/transactions", nil, nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&executionID, "execution", "", "execution id")
	_ = cmd.MarkFlagRequired("execution")
	return cmd
}

func execCancelCmd() *cobra.Command {
	var executionID string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel every non-final run of an execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().do("POST", "/api/executions/"+executionID+"/cancel", nil, nil, nil)
		},
	}
	cmd.Flags().StringVar(&executionID, "execution", "", "execution id")
	_ = cmd.MarkFlagRequired("execution")
	return cmd
}

func execRecoverCmd() *cobra.Command {
	var transactionID string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Reschedule the failed runs of a stalled transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().do("POST", "/api/transactions/"+transactionID+"/recover", nil, nil, nil)
		},
	}
	cmd.Flags().StringVar(&transactionID, "transaction", "", "transaction id")
	_ = cmd.MarkFlagRequired("transaction")
	return cmd
}
