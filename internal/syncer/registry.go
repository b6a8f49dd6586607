package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/tillq/pkg/db/models"
	"github.com/angelmondragon/tillq/pkg/enums"
)

// AnyResource registers an executor for every resource of an action.
const AnyResource = "*"

// Executor replays one operation against the remote store. A nil error is the
// acknowledgment that lets the engine drop the operation.
type Executor interface {
	Execute(ctx context.Context, op models.Operation) error
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, op models.Operation) error

func (f ExecutorFunc) Execute(ctx context.Context, op models.Operation) error {
	return f(ctx, op)
}

type registryKey struct {
	action   enums.OperationAction
	resource string
}

// ExecutorRegistry maps (action, resource) to the executor that replays it.
type ExecutorRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]Executor
}

func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{registry: make(map[registryKey]Executor)}
}

// Register stores exec for action on resource; use AnyResource as a fallback.
func (r *ExecutorRegistry) Register(action enums.OperationAction, resource string, exec Executor) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{action: action, resource: resource}] = exec
}

// RegisterAll binds exec to every action for resource.
func (r *ExecutorRegistry) RegisterAll(resource string, exec Executor) {
	for _, action := range []enums.OperationAction{enums.ActionCreate, enums.ActionUpdate, enums.ActionDelete} {
		r.Register(action, resource, exec)
	}
}

// Resolve prefers an exact (action, resource) match over the action's wildcard.
func (r *ExecutorRegistry) Resolve(action enums.OperationAction, resource string) (Executor, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if exec, ok := r.registry[registryKey{action: action, resource: resource}]; ok {
		return exec, nil
	}
	if exec, ok := r.registry[registryKey{action: action, resource: AnyResource}]; ok {
		return exec, nil
	}
	return nil, fmt.Errorf("no executor registered for %s on %s", action, resource)
}
