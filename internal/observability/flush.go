package observability

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// FlushLogger syncs buffered log entries before exit. Sync errors from
// terminals and pipes (EINVAL, ENOTTY) are expected and ignored.
func FlushLogger(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	err := logger.Sync()
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return fmt.Errorf("flush logs: %w", err)
}
