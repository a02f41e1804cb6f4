// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "PlateWatch")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/platewatch.log")
	viper.SetDefault("main.log.maxsize", 104857600)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "5000")
	viper.SetDefault("webserver.uploadpath", "uploads/")

	viper.SetDefault("recognition.endpoint", "http://localhost:8000/detect")
	viper.SetDefault("recognition.timeout", 30)
	viper.SetDefault("recognition.filefield", "file")
	viper.SetDefault("recognition.debug", false)

	viper.SetDefault("ingest.allowedextensions", []string{".jpg", ".jpeg", ".png"})
	viper.SetDefault("ingest.maxuploadsize", 10*1024*1024)
	viper.SetDefault("ingest.defaultcameraid", 1)

	viper.SetDefault("realtime.mqtt.enabled", false)
	viper.SetDefault("realtime.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("realtime.mqtt.topic", "platewatch/detections")
	viper.SetDefault("realtime.mqtt.username", "")
	viper.SetDefault("realtime.mqtt.password", "")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "platewatch.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "platewatch")
	viper.SetDefault("output.mysql.password", "platewatch")
	viper.SetDefault("output.mysql.database", "platewatch")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
}
