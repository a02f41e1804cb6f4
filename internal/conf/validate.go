package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateSettings checks the loaded settings for configuration errors.
func ValidateSettings(settings *Settings) error {
	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		return err
	}
	if err := validateRecognitionSettings(&settings.Recognition); err != nil {
		return err
	}
	if err := validateIngestSettings(&settings.Ingest); err != nil {
		return err
	}
	if err := validateOutputSettings(&settings.Output); err != nil {
		return err
	}
	return nil
}

func validateWebServerSettings(ws *WebServerSettings) error {
	if ws.Enabled && ws.Port == "" {
		return fmt.Errorf("webserver port must be set when webserver is enabled")
	}
	if ws.Enabled && ws.UploadPath == "" {
		return fmt.Errorf("webserver upload path must be set when webserver is enabled")
	}
	return nil
}

func validateRecognitionSettings(rec *RecognitionSettings) error {
	if rec.Endpoint == "" {
		return fmt.Errorf("recognition endpoint must be set")
	}
	if _, err := url.ParseRequestURI(rec.Endpoint); err != nil {
		return fmt.Errorf("recognition endpoint is not a valid URL: %w", err)
	}
	if rec.Timeout <= 0 {
		return fmt.Errorf("recognition timeout must be a positive number of seconds")
	}
	if rec.FileField == "" {
		return fmt.Errorf("recognition file field must be set")
	}
	return nil
}

func validateIngestSettings(ing *IngestSettings) error {
	if len(ing.AllowedExtensions) == 0 {
		return fmt.Errorf("ingest allowed extensions must not be empty")
	}
	for _, ext := range ing.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("ingest allowed extension %q must start with a dot", ext)
		}
	}
	if ing.MaxUploadSize <= 0 {
		return fmt.Errorf("ingest max upload size must be positive")
	}
	return nil
}

func validateOutputSettings(out *OutputSettings) error {
	if out.SQLite.Enabled && out.MySQL.Enabled {
		return fmt.Errorf("only one database output can be enabled at a time")
	}
	if !out.SQLite.Enabled && !out.MySQL.Enabled {
		return fmt.Errorf("one of sqlite or mysql output must be enabled")
	}
	if out.SQLite.Enabled && out.SQLite.Path == "" {
		return fmt.Errorf("sqlite database path must be set")
	}
	if out.MySQL.Enabled {
		if out.MySQL.Host == "" || out.MySQL.Port == "" || out.MySQL.Database == "" {
			return fmt.Errorf("mysql host, port and database must be set")
		}
	}
	return nil
}
