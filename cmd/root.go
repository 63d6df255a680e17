package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SisyphusSQ/mxavro/internal/log"
	"github.com/SisyphusSQ/mxavro/internal/vars"
)

var rootCmd = &cobra.Command{
	Use:  vars.AppName,
	Long: fmt.Sprintf("%s", vars.AppName),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Option missed! Use %s -h or --help for details.\n", vars.AppName)
	},
}

func initAll() {
	initVersion()
	initConvert()
	initServe()
}

func Execute() {
	initAll()
	if err := rootCmd.Execute(); err != nil {
		log.Logger.Error("%s execute got err: %v", vars.AppName, err)
		os.Exit(1)
	}
}
