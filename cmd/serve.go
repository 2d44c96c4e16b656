package cmd

import (
	"context"

	"dicom-object-store/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start http server with configured api",
	Long:  `Starts a http server, serves the DICOMweb api and runs the deleted instance cleanup in the background`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := setup(context.Background())
		if err != nil {
			return err
		}
		defer closeApp()

		return api.NewServer(a).Start()
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 3000, "port to listen on")
	serveCmd.Flags().Bool("enable-cors", false, "enable CORS middleware")
	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("enable_cors", serveCmd.Flags().Lookup("enable-cors"))
}
