package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adhikar/registry/claimid"
)

var claimIDFiles []string

var claimIDCmd = &cobra.Command{
	Use:   "claimid [contentHash]",
	Short: "Print the numeric ledger id for a content hash or a set of documents",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var contentHash string
		switch {
		case len(claimIDFiles) > 0:
			var docs [][]byte
			for _, f := range claimIDFiles {
				raw, err := os.ReadFile(f)
				if err != nil {
					return err
				}
				docs = append(docs, raw)
			}
			h, err := claimid.ContentHash(docs...)
			if err != nil {
				return err
			}
			contentHash = h
			fmt.Printf("content hash: %s\n", contentHash)
		case len(args) == 1:
			contentHash = args[0]
		default:
			return fmt.Errorf("provide a content hash or --file")
		}

		id, err := claimid.Derive(contentHash)
		if err != nil {
			return err
		}
		fmt.Printf("claim id: %d\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(claimIDCmd)
	claimIDCmd.Flags().StringSliceVarP(&claimIDFiles, "file", "f", nil, "supporting document to hash (repeatable)")
}
