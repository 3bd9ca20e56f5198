package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	healthCheckKey = "__health_check__"
	healthCheckTTL = time.Minute
)

// HealthCheck checks the current provider and round-trips a cache entry.
// It never fails; problems are reported in the status.
func (e *Engine) HealthCheck(ctx context.Context) HealthStatus {
	b := e.current.Load()

	status := HealthStatus{
		Provider: ProviderHealth{Name: b.name},
		Storage:  StorageHealth{Enabled: e.store != nil},
	}

	if err := b.provider.HealthCheck(ctx); err != nil {
		status.Provider.Error = err.Error()
		e.logger.Warn("provider health check failed", zap.String("provider", b.name), zap.Error(err))
	} else {
		status.Provider.Healthy = true
	}

	if e.store == nil {
		return status
	}

	status.Storage.Backend = e.store.Name()
	if err := e.checkStore(ctx); err != nil {
		status.Storage.Error = err.Error()
		e.logger.Warn("storage health check failed", zap.String("backend", e.store.Name()), zap.Error(err))
	} else {
		status.Storage.Healthy = true
	}
	return status
}

func (e *Engine) checkStore(ctx context.Context) error {
	want := time.Now().UTC().Format(time.RFC3339Nano)
	value, err := json.Marshal(map[string]string{"test": want})
	if err != nil {
		return err
	}

	if err := e.store.Save(ctx, healthCheckKey, value, healthCheckTTL); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer func() {
		if _, err := e.store.Delete(ctx, healthCheckKey); err != nil {
			e.logger.Warn("failed to remove health check entry", zap.Error(err))
		}
	}()

	data, ok, err := e.store.Load(ctx, healthCheckKey)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if !ok {
		return errors.New("load: entry missing after save")
	}

	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if got["test"] != want {
		return errors.New("round trip mismatch")
	}
	return nil
}
