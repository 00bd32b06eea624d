package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

func GenerateTemplateConfig(writeToFile bool) (Config, error) {
	cfg := Config{
		LogLevel:    "info",
		BindAddress: "127.0.0.1",
		Port:        8080,

		UpstreamOrigin: "https://backend.wplace.live",
		MirrorOrigin:   "http://localhost:8000",
		TilesConfigURL: "http://localhost:8000/config.json",
		ConfigPath:     "/config.json",
		PlacementURL:   "http://127.0.0.1:8000/colors",
		DocumentURL:    "https://wplace.live/",
		PaintMarker:    "/pixel/",

		StatsDumpInterval: 5 * time.Second,

		Prompt: PromptConfig{
			Mode:    PromptModeAPI,
			Timeout: 2 * time.Minute,
		},

		API: APIConfig{
			Enabled:     true,
			BindAddress: "127.0.0.1",
			Port:        9090,
		},

		MITM: MITMConfig{
			Hostname: "backend.wplace.live",
		},

		Mirror: MirrorConfig{
			Enabled:        false,
			BindAddress:    "0.0.0.0",
			Port:           8000,
			DataDir:        ".",
			TilesFile:      "config.json",
			UpdateInterval: time.Minute,
			CacheTTL:       30 * time.Second,
		},
	}

	if writeToFile {
		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to marshal template config to YAML: %w", err)
		}
		if err := os.WriteFile("config.yaml", data, 0644); err != nil {
			return Config{}, fmt.Errorf("failed to write template config to file: %w", err)
		}
	}
	return cfg, nil
}
