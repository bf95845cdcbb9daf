package errprocess

import (
	"errors"
	"fmt"

	"video_ingest_service/pkg/logger"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap log errMsg and return it wrapped around kind, so callers can errors.Is(err, kind)
func Wrap(kind error, errMsg string) error {
	logger.Log.Error(errMsg)
	return fmt.Errorf("%w: %s", kind, errMsg)
}
