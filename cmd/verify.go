package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adhikar/registry/nodebuilder"
	"github.com/adhikar/registry/registry"
)

var verifyOutputJSON bool

var verifyCmd = &cobra.Command{
	Use:   "verify <txHash>",
	Short: "Verify a claim record from the ledger alone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		config, err := loadNodeConfig()
		if err != nil {
			return err
		}
		nb := &nodebuilder.NodeBuilder{Config: config}
		defer nb.Stop()

		verifier, err := nb.StartVerifier(ctx)
		if err != nil {
			return err
		}
		svc := registry.NewService(nil, nil, verifier, registry.Options{ExplorerTxURL: config.Ledger.ExplorerTxURL})
		report, err := svc.Verify(ctx, args[0])
		if err != nil {
			return err
		}

		if verifyOutputJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		fmt.Print(report.Text())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyOutputJSON, "json", false, "print the full report as JSON")
}
