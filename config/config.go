// Package config holds the run configuration of the semfem command
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/notargets/SEMFEM/mesh"
	"github.com/notargets/SEMFEM/partitions"
)

const (
	BackendHost   = "host"
	BackendDevice = "device"
)

// Config is the top-level configuration
type Config struct {
	Ranks           int     `yaml:"ranks"`
	Backend         string  `yaml:"backend"`
	Tolerance       float64 `yaml:"tolerance"`
	AllowDegenerate bool    `yaml:"allow_degenerate"`

	Device DeviceConfig `yaml:"device"`
	Mesh   MeshConfig   `yaml:"mesh"`
	Log    LogConfig    `yaml:"log"`
}

type DeviceConfig struct {
	// Mode is an OCCA JSON property string; empty tries the fallback list
	Mode         string `yaml:"mode"`
	ScratchBytes int64  `yaml:"scratch_bytes"`
}

type MeshConfig struct {
	Elements     [3]int     `yaml:"elements"`
	Order        int        `yaml:"order"` // nodes per element direction
	Length       [3]float64 `yaml:"length"`
	Dirichlet    []string   `yaml:"dirichlet"`
	Partitioning string     `yaml:"partitioning"`
	GLL          bool       `yaml:"gll"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

func Default() Config {
	return Config{
		Ranks:     2,
		Backend:   BackendHost,
		Tolerance: 1.e-7,
		Device: DeviceConfig{
			ScratchBytes: 256 << 20,
		},
		Mesh: MeshConfig{
			Elements:     [3]int{4, 4, 4},
			Order:        4,
			Length:       [3]float64{1, 1, 1},
			Dirichlet:    []string{"xmin", "xmax", "ymin", "ymax", "zmin", "zmax"},
			Partitioning: "block",
			GLL:          true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies SEMFEM_* environment
// overrides and validates the result. An empty path uses the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return cfg, err
		}
	}
	loadFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without validating
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("SEMFEM_RANKS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Ranks = i
		}
	}
	if v := os.Getenv("SEMFEM_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("SEMFEM_DEVICE_MODE"); v != "" {
		cfg.Device.Mode = v
	}
	if v := os.Getenv("SEMFEM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c Config) Validate() error {
	if c.Ranks < 1 {
		return fmt.Errorf("ranks must be >= 1")
	}
	if c.Backend != BackendHost && c.Backend != BackendDevice {
		return fmt.Errorf("backend must be %q or %q, got %q", BackendHost, BackendDevice, c.Backend)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must be >= 0")
	}
	if c.Device.ScratchBytes < 0 {
		return fmt.Errorf("device.scratch_bytes must be >= 0")
	}
	if c.Mesh.Order < 2 {
		return fmt.Errorf("mesh.order must be >= 2")
	}
	total := 1
	for d := 0; d < 3; d++ {
		if c.Mesh.Elements[d] < 1 {
			return fmt.Errorf("mesh.elements must be positive, got %v", c.Mesh.Elements)
		}
		if c.Mesh.Length[d] <= 0 {
			return fmt.Errorf("mesh.length must be positive, got %v", c.Mesh.Length)
		}
		total *= c.Mesh.Elements[d]
	}
	if total < c.Ranks {
		return fmt.Errorf("%d elements cannot be split over %d ranks", total, c.Ranks)
	}
	if _, err := c.DirichletFaces(); err != nil {
		return err
	}
	if _, err := partitions.ParseStrategy(c.Mesh.Partitioning); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func (c Config) DirichletFaces() ([]mesh.Face, error) {
	faces := make([]mesh.Face, 0, len(c.Mesh.Dirichlet))
	for _, name := range c.Mesh.Dirichlet {
		f, err := mesh.ParseFace(name)
		if err != nil {
			return nil, err
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// BoxSpec converts the mesh section for the box generator
func (c Config) BoxSpec() (mesh.BoxSpec, error) {
	faces, err := c.DirichletFaces()
	if err != nil {
		return mesh.BoxSpec{}, err
	}
	return mesh.BoxSpec{
		Elements:  c.Mesh.Elements,
		N:         c.Mesh.Order,
		Length:    c.Mesh.Length,
		Dirichlet: faces,
		GLL:       c.Mesh.GLL,
	}, nil
}

func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return level, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
