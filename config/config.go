package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UNIFYSQL_"

// Config represents the application configuration.
type Config struct {
	BatchSize    int              `hcl:"batch_size,optional"`
	OriginalDir  string           `hcl:"original_dir,optional"`
	UnifiedDir   string           `hcl:"unified_dir,optional"`
	StatsDir     string           `hcl:"stats_dir,optional"`
	QueryTimeout string           `hcl:"query_timeout,optional"`
	Verbose      bool             `hcl:"verbose,optional"`
	LogErrors    bool             `hcl:"log_errors,optional"`
	MetricsFile  string           `hcl:"metrics_file,optional"`
	Datasets     []*DatasetConfig `hcl:"dataset,block"`
}

// DatasetConfig overrides where one dataset is read from and written to.
type DatasetConfig struct {
	Name        string `hcl:"name,label"`
	OriginalDir string `hcl:"original_dir,optional"`
	OutDir      string `hcl:"out_dir,optional"`
	Skip        bool   `hcl:"skip,optional"`
}

// overrides holds the environment variables that were actually set.
type overrides struct {
	BatchSize    *int    `env:"BATCH_SIZE"`
	OriginalDir  *string `env:"ORIGINAL_DIR"`
	UnifiedDir   *string `env:"UNIFIED_DIR"`
	StatsDir     *string `env:"STATS_DIR"`
	QueryTimeout *string `env:"QUERY_TIMEOUT"`
	Verbose      *bool   `env:"VERBOSE"`
	LogErrors    *bool   `env:"LOG_ERRORS"`
	MetricsFile  *string `env:"METRICS_FILE"`
}

// defaultSources maps datasets to their directory under OriginalDir when it
// differs from the dataset name.
var defaultSources = map[string]string{
	"spider_syn": filepath.Join("Spider-Syn", "Spider-Syn"),
	"spider_dk":  "Spider-DK",
	"dbqa":       "kaggle-dbqa",
	"cosql":      "cosql_dataset",
	"fiben":      "fiben-benchmark",
	"acl_sql":    "sql-nlp",
	"seoss":      filepath.Join("SEOSS-Queries", "dataset"),
}

var paraphraseFlavors = []string{"naive", "syntactic", "morphological", "lexical", "semantic", "missing"}

func init() {
	for _, f := range paraphraseFlavors {
		defaultSources[f+"_paraphrase_bench"] = filepath.Join("ParaphraseBench", "test")
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:    1000,
		OriginalDir:  "original",
		UnifiedDir:   "unified",
		StatsDir:     filepath.Join("stats", "output"),
		QueryTimeout: "60s",
	}
}

// Load reads the configuration from the given HCL file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file: %s", diags.Error())
	}

	cfg := DefaultConfig()
	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config: %s", diags.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields with the UNIFYSQL_* environment variables that
// are set.
func ApplyEnv(cfg *Config) error {
	var o overrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if o.BatchSize != nil {
		cfg.BatchSize = *o.BatchSize
	}
	if o.OriginalDir != nil {
		cfg.OriginalDir = *o.OriginalDir
	}
	if o.UnifiedDir != nil {
		cfg.UnifiedDir = *o.UnifiedDir
	}
	if o.StatsDir != nil {
		cfg.StatsDir = *o.StatsDir
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.Verbose != nil {
		cfg.Verbose = *o.Verbose
	}
	if o.LogErrors != nil {
		cfg.LogErrors = *o.LogErrors
	}
	if o.MetricsFile != nil {
		cfg.MetricsFile = *o.MetricsFile
	}
	return cfg.Validate()
}

// Validate checks the values that cannot be checked by the HCL schema.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Datasets))
	for _, d := range c.Datasets {
		if seen[d.Name] {
			return fmt.Errorf("dataset %q configured twice", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// Timeout parses QueryTimeout. An empty value means no limit.
func (c *Config) Timeout() (time.Duration, error) {
	if c.QueryTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.QueryTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid query_timeout %q: %w", c.QueryTimeout, err)
	}
	return d, nil
}

// Dataset resolves the directories of the named dataset. Unset block fields
// fall back to <original_dir>/<source> and <unified_dir>/<name>.
func (c *Config) Dataset(name string) DatasetConfig {
	d := DatasetConfig{Name: name}
	for _, b := range c.Datasets {
		if b.Name == name {
			d = *b
			break
		}
	}
	if d.OriginalDir == "" {
		source, ok := defaultSources[name]
		if !ok {
			source = name
		}
		d.OriginalDir = filepath.Join(c.OriginalDir, source)
	}
	if d.OutDir == "" {
		d.OutDir = filepath.Join(c.UnifiedDir, name)
	}
	return d
}

// Export writes the configuration to the specified file in HCL format.
func Export(path string, cfg *Config) error {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	root.SetAttributeValue("batch_size", cty.NumberIntVal(int64(cfg.BatchSize)))
	root.SetAttributeValue("original_dir", cty.StringVal(cfg.OriginalDir))
	root.SetAttributeValue("unified_dir", cty.StringVal(cfg.UnifiedDir))
	root.SetAttributeValue("stats_dir", cty.StringVal(cfg.StatsDir))
	root.SetAttributeValue("query_timeout", cty.StringVal(cfg.QueryTimeout))
	root.SetAttributeValue("verbose", cty.BoolVal(cfg.Verbose))
	root.SetAttributeValue("log_errors", cty.BoolVal(cfg.LogErrors))
	if cfg.MetricsFile != "" {
		root.SetAttributeValue("metrics_file", cty.StringVal(cfg.MetricsFile))
	}
	for _, d := range cfg.Datasets {
		root.AppendNewline()
		block := root.AppendNewBlock("dataset", []string{d.Name}).Body()
		if d.OriginalDir != "" {
			block.SetAttributeValue("original_dir", cty.StringVal(d.OriginalDir))
		}
		if d.OutDir != "" {
			block.SetAttributeValue("out_dir", cty.StringVal(d.OutDir))
		}
		if d.Skip {
			block.SetAttributeValue("skip", cty.True)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	_, err = file.Write(f.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write config to file: %w", err)
	}

	return nil
}
