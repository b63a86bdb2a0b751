package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var addScope string

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Store a new memory",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addScope, "scope", "", "scope key for the memory")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(true)
	if err != nil {
		return err
	}
	defer rt.close()

	content := strings.Join(args, " ")
	if !rt.manager.AddMemory(context.Background(), content, addScope) {
		return fmt.Errorf("failed to store memory")
	}
	if !rt.manager.ForceFlush() {
		logger := rt.logger()
		logger.Warn().Msg("Index flush failed, memory stored but not indexed on disk")
	}

	fmt.Println("Memory stored.")
	return nil
}
