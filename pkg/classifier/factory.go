package classifier

import (
	"github.com/umputun/wellscope/pkg/config"
)

// AllTasks lists every task the gateway serves
var AllTasks = []Task{TaskSentiment, TaskToxicity, TaskMisinfo, TaskEntities}

// NewGatewayFromConfig builds the gateway with one backend instance per kind,
// shared across the tasks configured to use it
func NewGatewayFromConfig(cfg config.ClassifierConfig) *Gateway {
	instances := map[config.BackendKind]Backend{}
	get := func(kind config.BackendKind) Backend {
		if b, ok := instances[kind]; ok {
			return b
		}
		var b Backend
		switch kind {
		case config.BackendOpenAI:
			b = NewOpenAIBackend(cfg.OpenAI)
		case config.BackendKeyword:
			b = NewKeywordBackend()
		default:
			b = NewRemoteBackend(cfg.Remote)
		}
		instances[kind] = b
		return b
	}

	backends := map[Task]Backend{}
	for _, task := range AllTasks {
		backends[task] = get(cfg.TaskBackend(string(task)))
	}

	return NewGateway(backends, int64(cfg.MaxConcurrent))
}
