package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug        bool
		TestMode     bool
		Env          string
		Build        string
		AppName      string
		SecretKey    string
		RollbarToken string

		Server struct {
			Address         string
			DebugHost       string
			Host            string
			ShutdownTimeout time.Duration
		}

		Auth struct {
			Issuer string
		}

		Database struct {
			Engine        string // postgres | sqlite3 | memory
			Host          string
			Port          string
			Name          string
			User          string
			Password      string
			AdminUser     string
			AdminPassword string
			DisableTLS    bool
			Path          string // sqlite3 only
		}

		Progress struct {
			LessonBonus int
			Monotonic   bool
		}

		Grading struct {
			MinFeedbackLength int
		}

		Reconciler struct {
			Enabled  bool
			Commit   bool
			Interval time.Duration
		}
	}
)

func (c *Config) IsPostgres() bool { return c.Database.Engine == "postgres" }

// DatabaseAddress returns the database "host:port".
func (c *Config) DatabaseAddress() string {
	if c.Database.Port == "" {
		return c.Database.Host
	}
	return fmt.Sprintf("%s:%s", c.Database.Host, c.Database.Port)
}

// NewConfig loads the app configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed by the env name, eg: `PROD_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Tathmini")
	v.SetDefault("secretKey", "x7f!kq2)w9p$3=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "tathmini")
	v.SetDefault("database.user", "tathmini")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "tathmini.db")
	v.SetDefault("progress.lessonBonus", 20)
	v.SetDefault("progress.monotonic", false)
	v.SetDefault("grading.minFeedbackLength", 20)
	v.SetDefault("reconciler.enabled", false)
	v.SetDefault("reconciler.commit", false)
	v.SetDefault("reconciler.interval", time.Hour)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := new(Config)
	conf.Env = env
	conf.Debug = v.GetBool("debug")
	conf.TestMode = v.GetBool("testMode")
	conf.Build = v.GetString("build")
	conf.AppName = v.GetString("appName")
	conf.SecretKey = v.GetString("secretKey")
	conf.RollbarToken = v.GetString("rollbarToken")
	conf.Auth.Issuer = v.GetString("auth.issuer")

	conf.Server.Address = v.GetString("server.address")
	conf.Server.DebugHost = v.GetString("server.debugHost")
	conf.Server.Host = v.GetString("server.host")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")

	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")
	conf.Database.Path = v.GetString("database.path")

	conf.Progress.LessonBonus = v.GetInt("progress.lessonBonus")
	conf.Progress.Monotonic = v.GetBool("progress.monotonic")
	conf.Grading.MinFeedbackLength = v.GetInt("grading.minFeedbackLength")

	conf.Reconciler.Enabled = v.GetBool("reconciler.enabled")
	conf.Reconciler.Commit = v.GetBool("reconciler.commit")
	conf.Reconciler.Interval = v.GetDuration("reconciler.interval")

	return conf
}
