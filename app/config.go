package chatroom

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Mode string

const (
	DevMode  Mode = "dev"
	ProdMode Mode = "prod"
)

const (
	SQLiteHistory = "sqlite"
	BadgerHistory = "badger"
)

type Config struct {
	// Mode is either dev or prod. Prod enables the hardened TLS config.
	Mode Mode `validate:"required,oneof=dev prod"`
	// Port is the Port number to listen on. The default is 8080.
	Port int `validate:"required,port"`
	// Hostname is the Hostname to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required"`
	// AllowedOrigins is a list of origins that are allowed to connect to the server.
	// The default is ["*"].
	AllowedOrigins []string
	Auth           struct {
		// Secret is the Secret key used to sign JWT tokens.
		// The secret must be a base64 encoded string. The default is a random 32 byte string.
		Secret Base64Encoded `validate:"required"`
		// TokenTTL is the fixed lifetime of an issued token.
		TokenTTL time.Duration `validate:"required,gt=0"`
	}
	SQLite struct {
		// File is the path to the SQLite database file.
		File string `validate:"required"`
	}
	History struct {
		// Backend selects where messages are stored: sqlite or badger.
		Backend   string `validate:"required,oneof=sqlite badger"`
		BadgerDir string `validate:"required_if=Backend badger"`
	}
	Redis struct {
		// URL enables cross instance fan-out when set.
		URL string `validate:"omitempty,url"`
	}
	WS struct {
		// EventsPerSecond limits inbound events per connection. Zero disables the limit.
		EventsPerSecond float64 `validate:"gte=0"`
		EventBurst      int     `validate:"gte=0"`
	}
	Chat struct {
		// RequireMembership rejects messages from senders that are not members of the room.
		RequireMembership bool
	}
	Log struct {
		Level string `validate:"required,oneof=debug info warn error"`
	}
	TLS struct {
		Crt string `validate:"required_with=Key"`
		Key string `validate:"required_with=Crt"`
	}
	valid bool
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

func setDefaults(v *viper.Viper) error {
	v.SetDefault("mode", string(DevMode))
	v.SetDefault("port", 8080)
	v.SetDefault("hostname", "0.0.0.0")
	v.SetDefault("allowedOrigins", []string{"*"})

	// generate a random secret key
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	v.SetDefault("auth.secret", base64.StdEncoding.EncodeToString(secret))
	v.SetDefault("auth.tokenTTL", 24*time.Hour)

	v.SetDefault("sqlite.file", "./chatroom.db")
	v.SetDefault("history.backend", SQLiteHistory)
	v.SetDefault("history.badgerDir", "./history")
	v.SetDefault("redis.url", "")
	v.SetDefault("ws.eventsPerSecond", 20)
	v.SetDefault("ws.eventBurst", 40)
	v.SetDefault("chat.requireMembership", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("tls.crt", "")
	v.SetDefault("tls.key", "")
	return nil
}

// LoadConfig loads the configuration from a .env file, the config file and
// environment variables, in increasing order of precedence. Nested keys map
// to environment variables with dots replaced by underscores, e.g. SQLITE_FILE.
// A missing config file or .env file is not an error.
// If file is empty, config.yaml is looked up in the working directory.
func LoadConfig(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(file != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	err := validate.Struct(c)
	if err != nil {
		return err
	}
	c.valid = true
	return nil
}

func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func FormatValidationErrors(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errs.Translate(trans)

	var sb strings.Builder
	for _, k := range slices.Sorted(maps.Keys(translated)) {
		sb.WriteString(translated[k])
		sb.WriteString("\n")
	}
	return sb.String()
}
