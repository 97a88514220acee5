package node

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.dedis.ch/swarm"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

const (
	// ConfigFile is the name of the file in the config folder that describes
	// the node.
	ConfigFile = "swarm.yaml"

	// EnvFile is the name of the optional file in the config folder that
	// populates the environment before the node starts.
	EnvFile = ".env"
)

const (
	// OrderingPoW selects the local proof-of-work ordering.
	OrderingPoW = "pow"
	// OrderingABCI selects the ordering driven by a CometBFT node.
	OrderingABCI = "abci"

	// EngineBolt selects the bbolt database engine.
	EngineBolt = "bbolt"
	// EngineLevel selects the goleveldb database engine.
	EngineLevel = "leveldb"
)

// Config is the description of a node. It is injected by the start command so
// that the initializers can resolve it.
type Config struct {
	Ordering string        `yaml:"ordering"`
	DB       DBConfig      `yaml:"db"`
	HTTP     HTTPConfig    `yaml:"http"`
	PoW      PoWConfig     `yaml:"pow"`
	ABCI     ABCIConfig    `yaml:"abci"`
	Tracing  TracingConfig `yaml:"tracing"`
}

// DBConfig is the configuration of the database.
type DBConfig struct {
	Engine string `yaml:"engine"`
	// Path is relative to the config folder unless it is absolute.
	Path string `yaml:"path"`
}

// HTTPConfig is the configuration of the proxy server. An empty address
// disables the server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// PoWConfig is the configuration of the proof-of-work ordering.
type PoWConfig struct {
	Difficulty uint32 `yaml:"difficulty"`
}

// ABCIConfig is the configuration of the CometBFT ordering. Addr is the address
// the application listens on and RPC the address of the node that receives the
// transactions.
type ABCIConfig struct {
	Addr string `yaml:"addr"`
	RPC  string `yaml:"rpc"`
}

// TracingConfig is the configuration of the tracer.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the configuration of a node without a config file.
func DefaultConfig() Config {
	return Config{
		Ordering: OrderingPoW,
		DB: DBConfig{
			Engine: EngineBolt,
			Path:   "swarm.db",
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8080",
		},
		PoW: PoWConfig{
			Difficulty: 1,
		},
		ABCI: ABCIConfig{
			Addr: "tcp://127.0.0.1:26658",
			RPC:  "tcp://127.0.0.1:26657",
		},
	}
}

// LoadConfig loads the environment file and then the configuration file of the
// folder. Missing files are ignored and the defaults are used instead. The
// database path is resolved against the folder.
func LoadConfig(dir string) (Config, error) {
	envPath := filepath.Join(dir, EnvFile)

	_, err := os.Stat(envPath)
	if err == nil {
		err = godotenv.Load(envPath)
		if err != nil {
			return Config{}, xerrors.Errorf("failed to load env: %v", err)
		}

		refreshLogLevel()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil && !os.IsNotExist(err) {
		return Config{}, xerrors.Errorf("failed to read config: %v", err)
	}

	if err == nil {
		err = yaml.UnmarshalStrict(data, &cfg)
		if err != nil {
			return Config{}, xerrors.Errorf("failed to decode config: %v", err)
		}
	}

	err = cfg.validate()
	if err != nil {
		return Config{}, xerrors.Errorf("invalid config: %v", err)
	}

	if !filepath.IsAbs(cfg.DB.Path) {
		cfg.DB.Path = filepath.Join(dir, cfg.DB.Path)
	}

	return cfg, nil
}

// Save writes the configuration in the folder.
func (cfg Config) Save(dir string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return xerrors.Errorf("failed to encode config: %v", err)
	}

	err = os.WriteFile(filepath.Join(dir, ConfigFile), data, 0600)
	if err != nil {
		return xerrors.Errorf("failed to write config: %v", err)
	}

	return nil
}

func (cfg Config) validate() error {
	switch cfg.Ordering {
	case OrderingPoW, OrderingABCI:
	default:
		return xerrors.Errorf("unknown ordering '%s'", cfg.Ordering)
	}

	switch cfg.DB.Engine {
	case EngineBolt, EngineLevel:
	default:
		return xerrors.Errorf("unknown db engine '%s'", cfg.DB.Engine)
	}

	if cfg.DB.Path == "" {
		return xerrors.New("missing db path")
	}

	return nil
}

// refreshLogLevel applies the level of the environment to the global logger as
// the file may have changed it after the logger was created.
func refreshLogLevel() {
	lvl := os.Getenv(swarm.EnvLogLevel)
	if lvl == "" {
		return
	}

	level, err := zerolog.ParseLevel(lvl)
	if err != nil {
		return
	}

	swarm.Logger = swarm.Logger.Level(level)
}
