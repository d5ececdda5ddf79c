package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// AcquireExecutionLock serializes stock-out execution per business across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the execution transaction.
func AcquireExecutionLock(tx *gorm.DB, businessId string) error {
	lockName := fmt.Sprintf("stockout:%s", businessId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire execution lock for business_id=%s", businessId)
	}
	return nil
}

func ReleaseExecutionLock(tx *gorm.DB, businessId string) {
	lockName := fmt.Sprintf("stockout:%s", businessId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// acquireRedisExecutionLock adds a best-effort cross-instance lock on top of
// the advisory lock when EXECUTION_REDIS_LOCK is set. Returns a nil release
// func when redis is unavailable; the status-gated update remains the
// authoritative guard either way.
func acquireRedisExecutionLock(ctx context.Context, businessId string, requestId int) (func(), error) {
	if !config.UseRedisExecutionLock() {
		return nil, nil
	}
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	key := fmt.Sprintf("stockout-exec:%s:%d", businessId, requestId)
	lock, err := locker.Obtain(ctx, key, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrExecutionConflict
	}
	if err != nil {
		// redis trouble never blocks execution
		return nil, nil
	}
	return func() { _ = lock.Release(ctx) }, nil
}
