// Package config loads the relay configuration from flags, FRELAY_*
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable: FRELAY_UPLOAD_URL, ...
const EnvPrefix = "FRELAY"

// Keys, used as flag names and, upper-cased with dashes as underscores, as
// environment variable names.
const (
	KeyUploadURL         = "upload-url"
	KeyDownloadBase      = "download-base"
	KeySizeLimit         = "size-limit"
	KeyChunkSize         = "chunk-size"
	KeyConnectTimeout    = "connect-timeout"
	KeyReadTimeout       = "read-timeout"
	KeySourceOpenTimeout = "source-open-timeout"
	KeyUploadTimeout     = "upload-timeout"
	KeyIdleTimeout       = "idle-timeout"
	KeyHeader            = "header"
	KeySourceHosts       = "source-hosts"
	KeyTelegramToken     = "telegram-token"
	KeyTelegramAPI       = "telegram-api"
	KeyCacheDir          = "cache-dir"
	KeyWorkers           = "workers"
	KeyListen            = "listen"
	KeyLogLevel          = "log-level"
)

// Config is the process-wide relay configuration. It is fixed at startup.
type Config struct {
	UploadURL    string
	DownloadBase string

	SizeLimit int64
	ChunkSize int

	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	SourceOpenTimeout time.Duration
	UploadTimeout     time.Duration
	IdleTimeout       time.Duration

	Headers map[string]string

	// SourceHosts limits http(s) downloads to these hosts. Empty allows any.
	SourceHosts []string

	TelegramToken string
	TelegramAPI   string

	CacheDir   string
	Workers    int
	ListenAddr string
	LogLevel   string
}

// BindFlags registers the configuration flags on flags and binds them, together
// with their environment variables, to v.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String(KeyUploadURL, "", "multipart upload endpoint every file is posted to")
	flags.String(KeyDownloadBase, "", "base URL download links are built from when the destination only returns a hash or id")
	flags.String(KeySizeLimit, "20MiB", "largest file relayed, e.g. 50MB or 2GiB; 0 disables the limit")
	flags.String(KeyChunkSize, "8KiB", "size of the buffer source chunks are read into")
	flags.Duration(KeyConnectTimeout, 10*time.Second, "dial timeout for source and destination")
	flags.Duration(KeyReadTimeout, 30*time.Second, "timeout for each source read")
	flags.Duration(KeySourceOpenTimeout, 30*time.Second, "timeout for the source to start streaming")
	flags.Duration(KeyUploadTimeout, 30*time.Minute, "overall timeout of one upload")
	flags.Duration(KeyIdleTimeout, 60*time.Second, "abort an upload when no bytes moved for this long")
	flags.StringToString(KeyHeader, nil, "header added to upload requests, as name=value (repeatable)")
	flags.StringSlice(KeySourceHosts, nil, "hosts http(s) sources may be downloaded from; a leading dot matches subdomains; empty allows any host")
	flags.String(KeyTelegramToken, "", "Telegram bot token used to resolve tg: handles")
	flags.String(KeyTelegramAPI, "", "Telegram Bot API base URL")
	flags.String(KeyCacheDir, "", "directory of the Telegram file path cache; empty disables it")
	flags.Int(KeyWorkers, 4, "relays run concurrently in batch mode")
	flags.String(KeyListen, ":8080", "listen address of the HTTP API")
	flags.String(KeyLogLevel, "info", "log level: debug, info, warn, error")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// TELEGRAM_TOKEN is accepted as well
	if err := v.BindEnv(KeyTelegramToken, EnvPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_TOKEN"); err != nil {
		return err
	}
	return v.BindPFlags(flags)
}

// LoadDotEnv loads environment variables from the given files, skipping
// files that do not exist. Variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	limit, err := parseSize(v.GetString(KeySizeLimit))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeySizeLimit, err)
	}
	chunk, err := parseSize(v.GetString(KeyChunkSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyChunkSize, err)
	}
	headers, err := parseHeaders(v.Get(KeyHeader))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyHeader, err)
	}

	cfg := &Config{
		UploadURL:         strings.TrimSpace(v.GetString(KeyUploadURL)),
		DownloadBase:      strings.TrimSpace(v.GetString(KeyDownloadBase)),
		SizeLimit:         limit,
		ChunkSize:         int(chunk),
		ConnectTimeout:    v.GetDuration(KeyConnectTimeout),
		ReadTimeout:       v.GetDuration(KeyReadTimeout),
		SourceOpenTimeout: v.GetDuration(KeySourceOpenTimeout),
		UploadTimeout:     v.GetDuration(KeyUploadTimeout),
		IdleTimeout:       v.GetDuration(KeyIdleTimeout),
		Headers:           headers,
		SourceHosts:       parseHosts(v.GetStringSlice(KeySourceHosts)),
		TelegramToken:     v.GetString(KeyTelegramToken),
		TelegramAPI:       v.GetString(KeyTelegramAPI),
		CacheDir:          v.GetString(KeyCacheDir),
		Workers:           v.GetInt(KeyWorkers),
		ListenAddr:        v.GetString(KeyListen),
		LogLevel:          v.GetString(KeyLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the relay cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.UploadURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyUploadURL))
	} else if u, err := url.Parse(c.UploadURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s %q is not an http(s) URL", KeyUploadURL, c.UploadURL))
	}
	if c.DownloadBase != "" {
		if u, err := url.Parse(c.DownloadBase); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q is not a URL", KeyDownloadBase, c.DownloadBase))
		}
	}
	if c.SizeLimit < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeySizeLimit))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyChunkSize))
	}
	for key, d := range map[string]time.Duration{
		KeyConnectTimeout:    c.ConnectTimeout,
		KeyReadTimeout:       c.ReadTimeout,
		KeySourceOpenTimeout: c.SourceOpenTimeout,
		KeyUploadTimeout:     c.UploadTimeout,
		KeyIdleTimeout:       c.IdleTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", key))
		}
	}
	// The idle watchdog only sees forwarded chunks, so a source read must give
	// up first to be reported as a source failure.
	if c.ReadTimeout > 0 && c.IdleTimeout > 0 && c.ReadTimeout >= c.IdleTimeout {
		errs = append(errs, fmt.Errorf("%s (%s) must be shorter than %s (%s)", KeyReadTimeout, c.ReadTimeout, KeyIdleTimeout, c.IdleTimeout))
	}
	for _, h := range c.SourceHosts {
		if strings.ContainsAny(h, "/:@ ") {
			errs = append(errs, fmt.Errorf("%s: %q is not a host name", KeySourceHosts, h))
		}
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyWorkers))
	}
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}
	return errors.Join(errs...)
}

// ApplyLogLevel sets the level of every logger.
func (c *Config) ApplyLogLevel() error {
	return logging.SetLogLevel("*", c.LogLevel)
}

func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// parseHeaders accepts the map a bound flag yields or the "a=1,b=2" string
// an environment variable holds.
func parseHosts(raw []string) []string {
	var hosts []string
	for _, item := range raw {
		for _, h := range strings.Split(item, ",") {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				hosts = append(hosts, h)
			}
		}
	}
	return hosts
}

func parseHeaders(raw any) (map[string]string, error) {
	headers := make(map[string]string)
	switch val := raw.(type) {
	case nil:
	case map[string]string:
		for k, v := range val {
			headers[k] = v
		}
	case map[string]any:
		for k, v := range val {
			headers[k] = fmt.Sprint(v)
		}
	case string:
		val = strings.Trim(strings.TrimSpace(val), "[]")
		if val == "" {
			break
		}
		for _, pair := range strings.Split(val, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("invalid header %q, want name=value", pair)
			}
			headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	default:
		return nil, fmt.Errorf("unexpected header value %T", raw)
	}
	return headers, nil
}
