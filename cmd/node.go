package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adhikar/registry/nodebuilder"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a registry node serving the HTTP API",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		config, err := loadNodeConfig()
		if err != nil {
			panic(fmt.Errorf("error getting node config: %v", err))
		}

		nb := &nodebuilder.NodeBuilder{Config: config}
		if err := nb.Start(ctx); err != nil {
			panic(fmt.Errorf("error starting node: %v", err))
		}
		fmt.Printf("Node running on %s\n", nb.Addr())

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs

		if err := nb.Stop(); err != nil {
			fmt.Printf("error stopping node: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
}
