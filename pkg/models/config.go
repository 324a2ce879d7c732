package models

// Config is the on-disk configuration (config.yaml)
type Config struct {
	Input     Input     `yaml:"input"`
	Source    Source    `yaml:"source"`
	Warehouse Warehouse `yaml:"warehouse"`
	Analytics Analytics `yaml:"analytics"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

// Input describes where the raw survey export lives and how it is cleaned
type Input struct {
	Path    string `yaml:"path"`    // local file or s3://bucket/key
	Workers int    `yaml:"workers"` // parallel row cleaning; 1 means sequential
}

// Source configures object-storage access for s3:// inputs
type Source struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// Warehouse holds the persisted-model connection settings
type Warehouse struct {
	Dialect    string `yaml:"dialect"` // sqlite, postgres, snowflake, sqlserver
	DSN        string `yaml:"dsn"`     // used as-is when set
	Account    string `yaml:"account"` // snowflake only
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Schema     string `yaml:"schema"`
	Warehouse  string `yaml:"warehouse"` // snowflake only
	Role       string `yaml:"role"`      // snowflake only
	Timeout    string `yaml:"timeout"`   // e.g. "30s"
	UseKeyring bool   `yaml:"use_keyring"`
}

// Analytics holds the default parameters of the report battery
type Analytics struct {
	Limit       int     `yaml:"limit"`     // rows for top-N style reports
	TopK        int     `yaml:"top_k"`     // members per partition
	Threshold   float64 `yaml:"threshold"` // high score share cut-off
	GapMeasureA string  `yaml:"gap_measure_a"`
	GapMeasureB string  `yaml:"gap_measure_b"`
}

// Server configures the read-only report server
type Server struct {
	Address      string   `yaml:"address"`
	CacheTTL     string   `yaml:"cache_ttl"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// Logging configures the structured logger
type Logging struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}
