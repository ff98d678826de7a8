package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/wwarncalc/internal/grouping"
)

// Global configuration structure.
type Global struct {
	// Database source
	DBDriver      string `mapstructure:"db_driver" yaml:"db_driver"`
	DBDSN         string `mapstructure:"db_dsn" yaml:"db_dsn"`
	QueryWhere    string `mapstructure:"query_where" yaml:"query_where"`
	UseProcedures bool   `mapstructure:"use_procedures" yaml:"use_procedures"`

	// Grouping inputs
	MarkerList       string `mapstructure:"marker_list" yaml:"marker_list"`
	AgeGroups        string `mapstructure:"age_groups" yaml:"age_groups"`
	CopyNumberGroups string `mapstructure:"copy_number_groups" yaml:"copy_number_groups"`
	YearStep         int    `mapstructure:"year_step" yaml:"year_step"`

	// Outputs
	OutputDir       string `mapstructure:"output_dir" yaml:"output_dir"`
	OutputPrefix    string `mapstructure:"output_prefix" yaml:"output_prefix"`
	MetricsTextfile string `mapstructure:"metrics_textfile" yaml:"metrics_textfile"`

	// S3 output
	S3Bucket    string `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region" yaml:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
	S3PathStyle bool   `mapstructure:"s3_path_style" yaml:"s3_path_style"`
}

// Keys lists the configuration keys in display order.
var Keys = []string{
	"db_driver", "db_dsn", "query_where", "use_procedures",
	"marker_list", "age_groups", "copy_number_groups", "year_step",
	"output_dir", "output_prefix", "metrics_textfile",
	"s3_bucket", "s3_region", "s3_endpoint", "s3_path_style",
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".wwarncalc"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.wwarncalc/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Command flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("WWARNCALC")
	v.AutomaticEnv()

	// Every key needs a default so that env-only values unmarshal.
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "")
	v.SetDefault("query_where", "")
	v.SetDefault("use_procedures", false)
	v.SetDefault("marker_list", "")
	v.SetDefault("age_groups", "")
	v.SetDefault("copy_number_groups", "")
	v.SetDefault("year_step", 0)
	v.SetDefault("output_dir", ".")
	v.SetDefault("output_prefix", "wwarn")
	v.SetDefault("metrics_textfile", "")
	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_path_style", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine; a malformed one is not
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.YearStep < 0 || c.YearStep > grouping.MaxYearStep {
		return nil, fmt.Errorf("year_step must be between 0 and %d, got %d", grouping.MaxYearStep, c.YearStep)
	}
	return &c, nil
}

// Get returns the display value of a key.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "db_driver":
		return c.DBDriver, nil
	case "db_dsn":
		return c.DBDSN, nil
	case "query_where":
		return c.QueryWhere, nil
	case "use_procedures":
		return strconv.FormatBool(c.UseProcedures), nil
	case "marker_list":
		return c.MarkerList, nil
	case "age_groups":
		return c.AgeGroups, nil
	case "copy_number_groups":
		return c.CopyNumberGroups, nil
	case "year_step":
		return strconv.Itoa(c.YearStep), nil
	case "output_dir":
		return c.OutputDir, nil
	case "output_prefix":
		return c.OutputPrefix, nil
	case "metrics_textfile":
		return c.MetricsTextfile, nil
	case "s3_bucket":
		return c.S3Bucket, nil
	case "s3_region":
		return c.S3Region, nil
	case "s3_endpoint":
		return c.S3Endpoint, nil
	case "s3_path_style":
		return strconv.FormatBool(c.S3PathStyle), nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

// Set parses val and assigns it to key.
func (c *Global) Set(key, val string) error {
	switch key {
	case "db_driver":
		switch strings.ToLower(val) {
		case "sqlite", "pgx", "mysql":
			c.DBDriver = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid db_driver: %s (use sqlite, pgx or mysql)", val)
		}
	case "db_dsn":
		c.DBDSN = val
	case "query_where":
		c.QueryWhere = val
	case "use_procedures":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for use_procedures: %w", err)
		}
		c.UseProcedures = b
	case "marker_list":
		c.MarkerList = val
	case "age_groups":
		c.AgeGroups = val
	case "copy_number_groups":
		c.CopyNumberGroups = val
	case "year_step":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 || i > grouping.MaxYearStep {
			return fmt.Errorf("invalid year_step: %v (want 0-%d)", val, grouping.MaxYearStep)
		}
		c.YearStep = i
	case "output_dir":
		c.OutputDir = val
	case "output_prefix":
		if val == "" {
			return fmt.Errorf("output_prefix cannot be empty")
		}
		c.OutputPrefix = val
	case "metrics_textfile":
		c.MetricsTextfile = val
	case "s3_bucket":
		c.S3Bucket = val
	case "s3_region":
		c.S3Region = val
	case "s3_endpoint":
		c.S3Endpoint = val
	case "s3_path_style":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for s3_path_style: %w", err)
		}
		c.S3PathStyle = b
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}
