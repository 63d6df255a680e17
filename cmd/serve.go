package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SisyphusSQ/mxavro/internal/session"
	"github.com/SisyphusSQ/mxavro/internal/vars"
)

var (
	serveAvroDir string
	serveAddr    string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve converted Avro tables to CDC clients over TCP",
	Example: fmt.Sprintf("%s serve --avro-dir=/data/avro --listen=:8308\n", vars.AppName),
	RunE: func(cmd *cobra.Command, args []string) error {
		return session.NewServer(serveAvroDir).ListenAndServe(serveAddr)
	},
}

func initServe() {
	serveCmd.Flags().StringVar(&serveAvroDir, "avro-dir", "", "directory holding the Avro container files and schema sidecars to serve (required)")
	serveCmd.Flags().StringVar(&serveAddr, "listen", ":8308", "address to listen for CDC client connections on")
	rootCmd.AddCommand(serveCmd)
}
