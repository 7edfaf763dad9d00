package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	OpenAI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
	Worker struct {
		Addr string `yaml:"addr"`
	} `yaml:"worker"`
	Publish struct {
		Addr  string `yaml:"addr"`
		Token string `yaml:"token"`
	} `yaml:"publish"`
	Trending struct {
		SourceURL string `yaml:"source_url"`
	} `yaml:"trending"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"minio"`
	Automation struct {
		Timezone           string  `yaml:"timezone"`
		LongFormSlot       string  `yaml:"long_form_slot"`
		ShortSlot          string  `yaml:"short_slot"`
		StuckJobMaxAgeMin  int     `yaml:"stuck_job_max_age_min"`
		StorageUsageMaxGB  float64 `yaml:"storage_usage_max_gb"`
		DiskHeadroomMinGB  float64 `yaml:"disk_headroom_min_gb"`
		ArtifactRetainDays int     `yaml:"artifact_retain_days"`
	} `yaml:"automation"`
}

var AppConfig *Config

func InitConfig() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}
	applyDefaults(AppConfig)
}

func applyDefaults(c *Config) {
	if c.Automation.Timezone == "" {
		c.Automation.Timezone = "Asia/Kolkata"
	}
	if c.Automation.LongFormSlot == "" {
		c.Automation.LongFormSlot = "18:00"
	}
	if c.Automation.ShortSlot == "" {
		c.Automation.ShortSlot = "20:00"
	}
	if c.Automation.StuckJobMaxAgeMin <= 0 {
		c.Automation.StuckJobMaxAgeMin = 60
	}
	if c.Automation.StorageUsageMaxGB <= 0 {
		c.Automation.StorageUsageMaxGB = 50
	}
	if c.Automation.DiskHeadroomMinGB <= 0 {
		c.Automation.DiskHeadroomMinGB = 5
	}
	if c.Automation.ArtifactRetainDays <= 0 {
		c.Automation.ArtifactRetainDays = 7
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
}
