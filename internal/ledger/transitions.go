package ledger

import "github.com/hihihowru/forum-autoposter-sub005/internal/types"

// Actor identifies who requests a transition
type Actor string

// Actor constants
const (
	ActorPipeline Actor = "pipeline"
	ActorOperator Actor = "operator"
)

// pipelineEdges is the automated lifecycle graph
var pipelineEdges = map[types.PostStatus][]types.PostStatus{
	types.StatusPendingGeneration: {types.StatusReadyToPublish, types.StatusGenerationFailed},
	types.StatusReadyToPublish:    {types.StatusPublished, types.StatusPublishFailed},
}

// operatorEdges are administrative actions: delete anything not published, and requeue failures
var operatorEdges = map[types.PostStatus][]types.PostStatus{
	types.StatusPendingGeneration: {types.StatusDeleted},
	types.StatusReadyToPublish:    {types.StatusDeleted},
	types.StatusGenerationFailed:  {types.StatusDeleted, types.StatusPendingGeneration},
	types.StatusPublishFailed:     {types.StatusDeleted, types.StatusReadyToPublish},
}

// CanTransition reports whether actor may move a record from one status to another
func CanTransition(from, to types.PostStatus, actor Actor) bool {
	edges := pipelineEdges
	if actor == ActorOperator {
		edges = operatorEdges
	}
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}
