package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Debug    bool
	TestMode bool
	Env      string
	AppName  string
	WorkDir  string
	Build    string

	SecretKey        string
	DefaultFromEmail mail.Address
	SendgridAPIKey   string
	RollbarToken     string

	// Site branding stamped into outgoing messages.
	SiteURL    string
	SiteHeader string
	SiteFooter string

	ReactionExpiry time.Duration // validity window of one-click reaction links

	// Reminder engine knobs.
	ScheduleCount   int           // instances fetched per orchestrator page
	TaskLimitUsers  int           // audience batch limit per resolution
	ClaimGrace      time.Duration // claims older than this are abandoned
	DeliveryTimeout time.Duration // per-send timeout on the external capability
	CronSpec        string        // reminder pass schedule

	Server struct {
		Host string
		Port string
	}

	Database struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}
}

func (c *Config) ServerAddress() string   { return c.Server.Host + ":" + c.Server.Port }
func (c *Config) DatabaseAddress() string { return c.Database.Host + ":" + c.Database.Port }

// NewConfig loads defaults, an optional per-env dotenv file and environment
// overrides, in that order.
func NewConfig(workDir string) *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Pulse")
	conf.SetDefault("secretKey", "w3lc0me-t0-pulse-ch4nge-m3-b3f0re-pr0d")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("scheduleCount", 100)
	conf.SetDefault("taskLimitUsers", 100)
	conf.SetDefault("claimGrace", time.Hour)
	conf.SetDefault("deliveryTimeout", 30*time.Second)
	conf.SetDefault("cronSpec", "*/5 * * * *")
	conf.SetDefault("siteUrl", "http://localhost:8000")
	conf.SetDefault("reactionExpiry", 14*24*time.Hour)
	conf.SetDefault("serverHost", "0.0.0.0")
	conf.SetDefault("serverPort", "8000")
	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbName", "pulse")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	testMode := false
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	c := &Config{
		Debug:            conf.GetBool("debug"),
		TestMode:         testMode,
		Env:              env,
		AppName:          conf.GetString("appName"),
		WorkDir:          workDir,
		Build:            conf.GetString("build"),
		SecretKey:        conf.GetString("secretKey"),
		DefaultFromEmail: mail.Address{Name: conf.GetString("appName"), Address: conf.GetString("defaultFromEmail")},
		SendgridAPIKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		SiteURL:          conf.GetString("siteUrl"),
		SiteHeader:       conf.GetString("siteHeader"),
		SiteFooter:       conf.GetString("siteFooter"),
		ReactionExpiry:   conf.GetDuration("reactionExpiry"),
		ScheduleCount:    conf.GetInt("scheduleCount"),
		TaskLimitUsers:   conf.GetInt("taskLimitUsers"),
		ClaimGrace:       conf.GetDuration("claimGrace"),
		DeliveryTimeout:  conf.GetDuration("deliveryTimeout"),
		CronSpec:         conf.GetString("cronSpec"),
	}
	c.Server.Host = conf.GetString("serverHost")
	c.Server.Port = conf.GetString("serverPort")
	c.Database.Engine = conf.GetString("dbEngine")
	c.Database.Name = conf.GetString("dbName")
	c.Database.User = conf.GetString("dbUser")
	c.Database.Password = conf.GetString("dbPassword")
	c.Database.AdminUser = conf.GetString("dbAdminUser")
	c.Database.AdminPassword = conf.GetString("dbAdminPassword")
	c.Database.Host = conf.GetString("dbHost")
	c.Database.Port = conf.GetString("dbPort")
	c.Database.DisableTLS = conf.GetBool("dbDisableTls")
	return c
}

// NewTestConfig returns a config suitable for package tests: no external
// services, tight delivery timeout.
func NewTestConfig() *Config {
	return &Config{
		Debug:            true,
		TestMode:         true,
		Env:              "TEST",
		AppName:          "Pulse",
		SecretKey:        "secret",
		DefaultFromEmail: mail.Address{Name: "Pulse", Address: "noreply@localhost"},
		SiteURL:          "http://localhost:8000",
		ReactionExpiry:   14 * 24 * time.Hour,
		ScheduleCount:    100,
		TaskLimitUsers:   100,
		ClaimGrace:       time.Hour,
		DeliveryTimeout:  time.Second,
		CronSpec:         "* * * * *",
	}
}

// Getwd returns the working directory of the running binary.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.Getwd: %v", err)
	}
	return wd
}
