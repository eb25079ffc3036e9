package common

const (
	ComponentOrchestrator   = "orchestrator"
	ComponentEVMIndexer     = "evm-indexer"
	ComponentStellarIndexer = "stellar-indexer"
	ComponentSink           = "sink"
	ComponentStore          = "store"
	ComponentRPC            = "rpc"
	ComponentAPI            = "api"
	ComponentMaintenance    = "maintenance"
)

var AllComponents = map[string]struct{}{
	ComponentOrchestrator:   {},
	ComponentEVMIndexer:     {},
	ComponentStellarIndexer: {},
	ComponentSink:           {},
	ComponentStore:          {},
	ComponentRPC:            {},
	ComponentAPI:            {},
	ComponentMaintenance:    {},
}
