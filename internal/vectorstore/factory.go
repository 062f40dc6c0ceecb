package vectorstore

import "fmt"

// Backend selects which Index implementation New constructs.
type Backend string

const (
	BackendChromem Backend = "chromem" // embedded, zero-config default
	BackendQdrant  Backend = "qdrant"
)

// Config is the top-level vector-index configuration: pick a Backend and
// fill in its matching section.
type Config struct {
	Backend Backend       `yaml:"backend"`
	Qdrant  QdrantConfig  `yaml:"qdrant"`
	Chromem ChromemConfig `yaml:"chromem"`
}

func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendChromem
	}
}

// New constructs the configured Index. Entity repos treat a nil Index as
// "no accelerator configured" and fall back to store.Store.SemanticSearch.
func New(cfg Config) (Index, error) {
	cfg.SetDefaults()
	switch cfg.Backend {
	case BackendQdrant:
		return NewQdrant(cfg.Qdrant)
	case BackendChromem:
		return NewChromem(cfg.Chromem)
	default:
		return nil, fmt.Errorf("vectorstore: unknown backend %q", cfg.Backend)
	}
}
