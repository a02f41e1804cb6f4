package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platewatch/platewatch-go/internal/conf"
	"github.com/platewatch/platewatch-go/internal/server"
)

// Command creates the serve command that runs the recognition server.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the PlateWatch server",
		Long:  "Start the HTTP server that ingests camera images, runs plate recognition and pushes detections to connected clients.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port to listen on")
	cmd.Flags().StringVar(&settings.WebServer.UploadPath, "uploadpath", viper.GetString("webserver.uploadpath"), "Directory for retained upload images")
	cmd.Flags().StringVar(&settings.Recognition.Endpoint, "engine", viper.GetString("recognition.endpoint"), "Recognition engine endpoint URL")
	cmd.Flags().IntVar(&settings.Recognition.Timeout, "enginetimeout", viper.GetInt("recognition.timeout"), "Recognition request timeout in seconds")
	cmd.Flags().BoolVar(&settings.Realtime.MQTT.Enabled, "mqtt", viper.GetBool("realtime.mqtt.enabled"), "Publish detections to MQTT")
	cmd.Flags().StringVar(&settings.Realtime.MQTT.Broker, "broker", viper.GetString("realtime.mqtt.broker"), "MQTT broker URL")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
