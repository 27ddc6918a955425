package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/varalys/blockscrub/internal/types"
)

// FileConfig is the on-disk YAML configuration shape for blockscrub.
type FileConfig struct {
	Formats map[string]FormatConfig `yaml:"formats"`

	Server *ServerConfig `yaml:"server"`
	Log    *LogConfig    `yaml:"log"`

	// Batch mode filters mirror CLI flags
	Include         *string `yaml:"include"`
	Exclude         *string `yaml:"exclude"`
	DefaultExcludes *bool   `yaml:"default_excludes"`
	NoCache         *bool   `yaml:"no_cache"`
	NoColor         *bool   `yaml:"no_color"`
	FailOn          *string `yaml:"fail_on"`
}

// FormatConfig describes one format keyed by file extension. Byte fields
// accept Go string escapes such as \n, \t and \x00.
type FormatConfig struct {
	Prefix        string `yaml:"prefix"`
	Suffix        string `yaml:"suffix"`
	BlockPattern  string `yaml:"block_pattern"`
	Replacement   string `yaml:"replacement"`
	MaxBlockBytes int    `yaml:"max_block_bytes,omitempty"`
	Processor     string `yaml:"processor,omitempty"`
}

// ServerConfig holds settings for `blockscrub serve`.
type ServerConfig struct {
	Listen       *string `yaml:"listen"`
	ReadTimeout  *string `yaml:"read_timeout"`
	WriteTimeout *string `yaml:"write_timeout"`
	TempDir      *string `yaml:"temp_dir"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level *string `yaml:"level"`
	JSON  *bool   `yaml:"json"`
}

// LoadFile reads a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Returned when a config file does not exist.
var (
	ErrNoLocalConfig  = errors.New("no local config")
	ErrNoGlobalConfig = errors.New("no global config")
)

// LocalNames lists the file names LoadLocal looks for, in search order.
var LocalNames = []string{".blockscrub.yml", ".blockscrub.yaml", "blockscrub.yml", "blockscrub.yaml"}

// LoadLocal searches for a project-local config file in the given root.
func LoadLocal(root string) (FileConfig, error) {
	p, err := FindLocal(root)
	if err != nil {
		return FileConfig{}, err
	}
	return LoadFile(p)
}

// FindLocal returns the path of the first local config file in root.
func FindLocal(root string) (string, error) {
	for _, name := range LocalNames {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNoLocalConfig
}

// GlobalPath returns the global config path under the XDG base directory
// or ~/.config.
func GlobalPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		return "", fmt.Errorf("%w: no config dir", ErrNoGlobalConfig)
	}
	return filepath.Join(base, "blockscrub", "config.yml"), nil
}

// LoadGlobal loads the global config file.
func LoadGlobal() (FileConfig, error) {
	p, err := GlobalPath()
	if err != nil {
		return FileConfig{}, err
	}
	if _, err := os.Stat(p); err != nil {
		return FileConfig{}, ErrNoGlobalConfig
	}
	return LoadFile(p)
}

// Merge returns global with every field set in local taking precedence.
// Formats merge per extension.
func Merge(local, global FileConfig) FileConfig {
	out := global
	if len(local.Formats) > 0 {
		out.Formats = make(map[string]FormatConfig, len(global.Formats)+len(local.Formats))
		for k, v := range global.Formats {
			out.Formats[k] = v
		}
		for k, v := range local.Formats {
			out.Formats[k] = v
		}
	}
	if local.Server != nil {
		out.Server = local.Server
	}
	if local.Log != nil {
		out.Log = local.Log
	}
	if local.Include != nil {
		out.Include = local.Include
	}
	if local.Exclude != nil {
		out.Exclude = local.Exclude
	}
	if local.DefaultExcludes != nil {
		out.DefaultExcludes = local.DefaultExcludes
	}
	if local.NoCache != nil {
		out.NoCache = local.NoCache
	}
	if local.NoColor != nil {
		out.NoColor = local.NoColor
	}
	if local.FailOn != nil {
		out.FailOn = local.FailOn
	}
	return out
}

// FormatSpecs converts the configured formats into FormatSpecs sorted by
// extension. Grammar compilation is left to the engine.
func (fc FileConfig) FormatSpecs() ([]types.FormatSpec, error) {
	exts := make([]string, 0, len(fc.Formats))
	for ext := range fc.Formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	specs := make([]types.FormatSpec, 0, len(exts))
	for _, ext := range exts {
		spec, err := fc.Formats[ext].Spec(ext)
		if err != nil {
			return nil, fmt.Errorf("format %q: %w", ext, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Spec decodes a FormatConfig into a FormatSpec for extension ext.
func (f FormatConfig) Spec(ext string) (types.FormatSpec, error) {
	var spec types.FormatSpec
	var err error
	spec.Extension = types.NormalizeExt(ext)
	if spec.Extension == "" {
		return spec, errors.New("empty extension")
	}
	if spec.Prefix, err = DecodeBytes(f.Prefix); err != nil {
		return spec, fmt.Errorf("prefix: %w", err)
	}
	if spec.Suffix, err = DecodeBytes(f.Suffix); err != nil {
		return spec, fmt.Errorf("suffix: %w", err)
	}
	if spec.Replacement, err = DecodeBytes(f.Replacement); err != nil {
		return spec, fmt.Errorf("replacement: %w", err)
	}
	if f.BlockPattern == "" {
		return spec, errors.New("block_pattern is required")
	}
	spec.BlockPattern = f.BlockPattern
	spec.MaxBlockBytes = f.MaxBlockBytes
	if spec.Processor, err = types.ParseProcessorType(f.Processor); err != nil {
		return spec, err
	}
	return spec, nil
}

// DecodeBytes interprets Go string escapes in s (\n, \t, \x00, \u00e9)
// so config files can carry arbitrary bytes.
func DecodeBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if !strings.Contains(s, `\`) {
		return []byte(s), nil
	}
	orig := s
	out := make([]byte, 0, len(s))
	for len(s) > 0 {
		if s[0] == '"' {
			out = append(out, '"')
			s = s[1:]
			continue
		}
		r, multibyte, tail, err := strconv.UnquoteChar(s, '"')
		if err != nil {
			return nil, fmt.Errorf("invalid escape in %q", orig)
		}
		if r < utf8.RuneSelf || !multibyte {
			out = append(out, byte(r))
		} else {
			out = utf8.AppendRune(out, r)
		}
		s = tail
	}
	return out, nil
}

// GetServerConfig returns the server configuration with defaults applied.
func (fc FileConfig) GetServerConfig() ServerConfig {
	var sc ServerConfig
	if fc.Server != nil {
		sc = *fc.Server
	}
	if sc.Listen == nil {
		listen := ":8080"
		sc.Listen = &listen
	}
	return sc
}

// GetListen returns the listen address.
func (sc ServerConfig) GetListen() string {
	if sc.Listen == nil {
		return ":8080"
	}
	return *sc.Listen
}

// GetReadTimeout parses read_timeout, defaulting to 30s.
func (sc ServerConfig) GetReadTimeout() time.Duration {
	return parseDuration(sc.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout parses write_timeout, defaulting to 60s.
func (sc ServerConfig) GetWriteTimeout() time.Duration {
	return parseDuration(sc.WriteTimeout, 60*time.Second)
}

// GetTempDir returns temp_dir or the OS temp directory.
func (sc ServerConfig) GetTempDir() string {
	if sc.TempDir == nil || *sc.TempDir == "" {
		return os.TempDir()
	}
	return *sc.TempDir
}

// GetLevel returns the configured log level or "info".
func (lc *LogConfig) GetLevel() string {
	if lc == nil || lc.Level == nil || *lc.Level == "" {
		return "info"
	}
	return *lc.Level
}

// IsJSON reports whether logs should be emitted as JSON.
func (lc *LogConfig) IsJSON() bool {
	return lc != nil && lc.JSON != nil && *lc.JSON
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
