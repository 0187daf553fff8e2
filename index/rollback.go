package index

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/voltgrid/receipt-engine/common"
	"github.com/voltgrid/receipt-engine/storage"
)

// Rollback deletes the given keys in reverse insertion order,
// compensating for a failed write transaction. Every delete is
// attempted; failures are logged and do not stop the sweep. Returns
// true iff all deletes succeeded. Callers surface the original
// transaction error regardless of the rollback outcome.
func Rollback(ctx context.Context, store storage.ObjectStore, keys []string, log *logrus.Logger) bool {
	if log == nil {
		log = common.Logger
	}
	ok := true
	for i := len(keys) - 1; i >= 0; i-- {
		if err := store.Delete(ctx, keys[i]); err != nil {
			ok = false
			log.WithFields(logrus.Fields{
				"op":   "rollback",
				"key":  keys[i],
				"kind": common.ErrorKind(err),
			}).Error("compensating delete failed")
		}
	}
	return ok
}
