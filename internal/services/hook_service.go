package services

import (
	"errors"
	"sync"

	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
)

type HookService interface {
	AddHook(hook Hook) error
	OnTransactionConfirmed(tx models.MarketplaceTransaction) error
}

type hookService struct {
	mu    sync.RWMutex
	hooks []Hook
}

func NewHookService() HookService {
	return &hookService{
		hooks: []Hook{},
	}
}

func (h *hookService) AddHook(hook Hook) error {
	if hook == nil {
		return errors.New("hook is nil")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
	return nil
}

// OnTransactionConfirmed runs every hook that handles the action. A failing
// hook does not stop the others; all errors are joined.
func (h *hookService) OnTransactionConfirmed(tx models.MarketplaceTransaction) error {
	h.mu.RLock()
	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.RUnlock()

	var errs []error
	for _, hook := range hooks {
		if !hook.CanHandle(tx.Action) {
			continue
		}
		if err := hook.OnTransactionConfirmed(tx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
