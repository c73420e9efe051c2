package shutdown

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"ghibli_backend/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	return logging.NewWithCore(zaptest.NewLogger(t).Core())
}
