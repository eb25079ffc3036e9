package poller

import (
	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/prediction-market/callindexor/pkg/indexer"
)

func init() {
	indexer.Register(common.ChainBase, func(cfg *config.Config, deps indexer.Deps) (indexer.ChainIndexer, error) {
		return NewEvmIndexer(cfg.Base, deps, nil)
	})
	indexer.Register(common.ChainStellar, func(cfg *config.Config, deps indexer.Deps) (indexer.ChainIndexer, error) {
		return NewStellarIndexer(cfg.Stellar, deps, nil)
	})
}
