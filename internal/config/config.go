// Package config assembles a node configuration from a YAML file, a .env
// file and CRN_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"crn-node/internal/p2p"
	"crn-node/internal/paths"
)

// Default port policy for the process wrapper.
const (
	DefaultPortMin = 20110
	DefaultPortMax = 20130
)

// File mirrors the YAML layout. Fields absent from the file keep their defaults.
type File struct {
	Name      string `yaml:"name"`
	Port      int    `yaml:"port"`
	Bind      string `yaml:"bind"`
	Advertise string `yaml:"advertise"`
	PortMin   int    `yaml:"port_min"`
	PortMax   int    `yaml:"port_max"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RelayTimeout   time.Duration `yaml:"relay_timeout"`
	LookupTimeout  time.Duration `yaml:"lookup_timeout"`
	LookupRounds   int           `yaml:"lookup_rounds"`
	DisableLookup  bool          `yaml:"disable_lookup"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      float64       `yaml:"rate_burst"`

	Bootstrap   []string `yaml:"bootstrap"`
	MetricsAddr string   `yaml:"metrics_addr"`
	PeerDB      string   `yaml:"peer_db"`
	DataDir     string   `yaml:"data_dir"`
	Debug       bool     `yaml:"debug"`
	Interactive bool     `yaml:"interactive"`
}

// Bootstrap is a peer known before the node starts.
type Bootstrap struct {
	Name string
	Addr string
}

// Settings is everything the process wrapper needs.
type Settings struct {
	Node        p2p.Config
	Bootstraps  []Bootstrap
	MetricsAddr string
	PeerDB      string
	Interactive bool
}

// Defaults returns the file-level defaults.
func Defaults() File {
	d := p2p.DefaultConfig()
	return File{
		Port:           DefaultPortMin,
		Bind:           d.BindHost,
		Advertise:      d.AdvertiseHost,
		PortMin:        DefaultPortMin,
		PortMax:        DefaultPortMax,
		RequestTimeout: d.RequestTimeout,
		MaxRetries:     d.MaxRetries,
		RelayTimeout:   d.RelayTimeout,
		LookupTimeout:  d.LookupTimeout,
		LookupRounds:   d.LookupRounds,
		RateLimit:      d.RateLimit,
		RateBurst:      d.RateBurst,
		DataDir:        paths.DefaultDataDir(),
	}
}

// Load reads path (optional), then envFiles (default ".env", missing files
// ignored), then the process environment.
func Load(path string, envFiles ...string) (File, error) {
	f := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("%w: read %s: %v", p2p.ErrConfiguration, path, err)
		}
		if err := decodeYAML(raw, &f); err != nil {
			return File{}, fmt.Errorf("%w: parse %s: %v", p2p.ErrConfiguration, path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, ef := range envFiles {
		// godotenv.Load never overrides variables already set.
		if err := godotenv.Load(ef); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return File{}, fmt.Errorf("%w: env file %s: %v", p2p.ErrConfiguration, ef, err)
		}
	}

	if err := f.applyEnv(os.LookupEnv); err != nil {
		return File{}, err
	}
	return f, nil
}

func decodeYAML(raw []byte, f *File) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (f *File) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}

	str("CRN_NAME", &f.Name)
	integer("CRN_PORT", &f.Port)
	str("CRN_BIND", &f.Bind)
	str("CRN_ADVERTISE", &f.Advertise)
	integer("CRN_PORT_MIN", &f.PortMin)
	integer("CRN_PORT_MAX", &f.PortMax)
	duration("CRN_REQUEST_TIMEOUT", &f.RequestTimeout)
	integer("CRN_MAX_RETRIES", &f.MaxRetries)
	duration("CRN_RELAY_TIMEOUT", &f.RelayTimeout)
	duration("CRN_LOOKUP_TIMEOUT", &f.LookupTimeout)
	integer("CRN_LOOKUP_ROUNDS", &f.LookupRounds)
	boolean("CRN_DISABLE_LOOKUP", &f.DisableLookup)
	float("CRN_RATE_LIMIT", &f.RateLimit)
	float("CRN_RATE_BURST", &f.RateBurst)
	if v, ok := lookup("CRN_BOOTSTRAP"); ok {
		f.Bootstrap = SplitList(v)
	}
	str("CRN_METRICS_ADDR", &f.MetricsAddr)
	str("CRN_PEER_DB", &f.PeerDB)
	str("CRN_DATA_DIR", &f.DataDir)
	boolean("CRN_DEBUG", &f.Debug)
	boolean("CRN_INTERACTIVE", &f.Interactive)

	if len(errs) > 0 {
		return fmt.Errorf("%w: environment: %v", p2p.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// SplitList splits a comma-separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseBootstrap parses "N:name=host:port".
func ParseBootstrap(s string) (Bootstrap, error) {
	name, addr, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok || !strings.HasPrefix(name, p2p.NamePrefix) || len(name) == len(p2p.NamePrefix) || addr == "" {
		return Bootstrap{}, fmt.Errorf("%w: bootstrap %q, want N:name=host:port", p2p.ErrConfiguration, s)
	}
	return Bootstrap{Name: name, Addr: addr}, nil
}

// Settings resolves f into a validated node configuration.
func (f File) Settings() (Settings, error) {
	cfg := p2p.DefaultConfig()
	cfg.Name = f.Name
	cfg.Port = f.Port
	cfg.BindHost = f.Bind
	cfg.AdvertiseHost = f.Advertise
	cfg.PortMin = f.PortMin
	cfg.PortMax = f.PortMax
	cfg.RequestTimeout = f.RequestTimeout
	cfg.MaxRetries = f.MaxRetries
	cfg.RelayTimeout = f.RelayTimeout
	cfg.LookupTimeout = f.LookupTimeout
	cfg.LookupRounds = f.LookupRounds
	cfg.DisableLookup = f.DisableLookup
	cfg.RateLimit = f.RateLimit
	cfg.RateBurst = f.RateBurst
	cfg.Debug = f.Debug

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}

	s := Settings{
		Node:        cfg,
		MetricsAddr: f.MetricsAddr,
		PeerDB:      f.PeerDB,
		Interactive: f.Interactive,
	}
	if s.PeerDB == "" && f.DataDir != "" {
		s.PeerDB = paths.PeerDB(f.DataDir, f.Name)
	}
	for _, b := range f.Bootstrap {
		bs, err := ParseBootstrap(b)
		if err != nil {
			return Settings{}, err
		}
		s.Bootstraps = append(s.Bootstraps, bs)
	}
	return s, nil
}
