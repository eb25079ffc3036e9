package indexer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/pkg/config"
)

// Deps are the shared collaborators handed to every chain indexer.
type Deps struct {
	Sink    EventSink
	Cursors CursorStore
	Log     *logger.Logger
}

// Factory creates the indexer of one chain from the full configuration.
type Factory func(cfg *config.Config, deps Deps) (ChainIndexer, error)

var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

// Register registers the factory of a chain.
// This is typically called in init() functions of poller packages.
// The chain name is case-insensitive.
func Register(chain common.Chain, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	name := strings.ToUpper(chain.String())
	if _, exists := registry[name]; exists {
		logger.GetDefaultLogger().Infof("indexer for chain %s already in indexer registry. "+
			"It will be overwritten.", name)
	}

	registry[name] = factory
}

// GetFactory returns the factory for the given chain, or nil.
func GetFactory(chain common.Chain) Factory {
	mu.RLock()
	defer mu.RUnlock()
	return registry[strings.ToUpper(chain.String())]
}

// ListRegistered returns the registered chains in sorted order.
func ListRegistered() []string {
	mu.RLock()
	defer mu.RUnlock()

	chains := make([]string, 0, len(registry))
	for c := range registry {
		chains = append(chains, c)
	}
	sort.Strings(chains)
	return chains
}

// Create builds the indexer of chain using its registered factory.
func Create(chain common.Chain, cfg *config.Config, deps Deps) (ChainIndexer, error) {
	factory := GetFactory(chain)
	if factory == nil {
		return nil, fmt.Errorf("no indexer registered for chain %s (registered chains: %v)", chain, ListRegistered())
	}

	return factory(cfg, deps)
}
