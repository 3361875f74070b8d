// pkg/store/gorm.go

package store

import (
	"context"
	"time"

	cerr "github.com/cockroachdb/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/amareque/challenge-senior-engineer/pkg/syncerr"
)

// Gorm is the Postgres-backed Store.
type Gorm struct {
	db *gorm.DB
}

// Open connects to Postgres and verifies connectivity with a short ping.
func Open(ctx context.Context, dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, cerr.Wrap(err, "open postgres")
	}
	s := &Gorm{db: db}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		return nil, cerr.Wrap(err, "ping postgres")
	}
	return s, nil
}

// NewGorm wraps an existing gorm handle. Used by tests and the migrate
// command.
func NewGorm(db *gorm.DB) *Gorm { return &Gorm{db: db} }

// AutoMigrate creates or updates the lists and items tables.
func (s *Gorm) AutoMigrate() error {
	return s.db.AutoMigrate(&List{}, &Item{})
}

func (s *Gorm) CreateList(ctx context.Context, list *List) error {
	if err := s.db.WithContext(ctx).Create(list).Error; err != nil {
		return cerr.Wrap(err, "create list")
	}
	return nil
}

func (s *Gorm) GetList(ctx context.Context, id uint) (*List, error) {
	var list List
	err := s.db.WithContext(ctx).First(&list, id).Error
	if cerr.Is(err, gorm.ErrRecordNotFound) {
		return nil, syncerr.NotFoundf("list %d", id)
	}
	if err != nil {
		return nil, cerr.Wrapf(err, "get list %d", id)
	}
	return &list, nil
}

func (s *Gorm) GetListWithItems(ctx context.Context, id uint) (*List, error) {
	var list List
	err := s.db.WithContext(ctx).Preload("Items").First(&list, id).Error
	if cerr.Is(err, gorm.ErrRecordNotFound) {
		return nil, syncerr.NotFoundf("list %d", id)
	}
	if err != nil {
		return nil, cerr.Wrapf(err, "get list %d with items", id)
	}
	return &list, nil
}

func (s *Gorm) ListsWithItems(ctx context.Context) ([]List, error) {
	var lists []List
	if err := s.db.WithContext(ctx).Preload("Items").Order("id").Find(&lists).Error; err != nil {
		return nil, cerr.Wrap(err, "load lists")
	}
	return lists, nil
}

func (s *Gorm) UpdateListName(ctx context.Context, id uint, name string) error {
	res := s.db.WithContext(ctx).Model(&List{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return cerr.Wrapf(res.Error, "update list %d", id)
	}
	if res.RowsAffected == 0 {
		return syncerr.NotFoundf("list %d", id)
	}
	return nil
}

func (s *Gorm) SetListExternalID(ctx context.Context, id uint, externalID string, force bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var list List
		if err := tx.First(&list, id).Error; err != nil {
			if cerr.Is(err, gorm.ErrRecordNotFound) {
				return syncerr.NotFoundf("list %d", id)
			}
			return cerr.Wrapf(err, "get list %d", id)
		}
		if list.ExternalID != nil {
			if *list.ExternalID == externalID {
				return nil
			}
			if !force {
				return cerr.Newf("list %d external id already set to %q", id, *list.ExternalID)
			}
		}
		return tx.Model(&list).Update("external_id", externalID).Error
	})
}

func (s *Gorm) DeleteList(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list_id = ?", id).Delete(&Item{}).Error; err != nil {
			return cerr.Wrapf(err, "delete items of list %d", id)
		}
		res := tx.Delete(&List{}, id)
		if res.Error != nil {
			return cerr.Wrapf(res.Error, "delete list %d", id)
		}
		if res.RowsAffected == 0 {
			return syncerr.NotFoundf("list %d", id)
		}
		return nil
	})
}

func (s *Gorm) CreateItem(ctx context.Context, item *Item) error {
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return cerr.Wrap(err, "create item")
	}
	return nil
}

func (s *Gorm) GetItem(ctx context.Context, id uint) (*Item, error) {
	var item Item
	err := s.db.WithContext(ctx).First(&item, id).Error
	if cerr.Is(err, gorm.ErrRecordNotFound) {
		return nil, syncerr.NotFoundf("item %d", id)
	}
	if err != nil {
		return nil, cerr.Wrapf(err, "get item %d", id)
	}
	return &item, nil
}

func (s *Gorm) UpdateItem(ctx context.Context, id uint, title string, completed bool) error {
	// Map form so a false completed value is still written.
	res := s.db.WithContext(ctx).Model(&Item{}).Where("id = ?", id).
		Updates(map[string]interface{}{"title": title, "completed": completed})
	if res.Error != nil {
		return cerr.Wrapf(res.Error, "update item %d", id)
	}
	if res.RowsAffected == 0 {
		return syncerr.NotFoundf("item %d", id)
	}
	return nil
}

func (s *Gorm) SetItemExternalID(ctx context.Context, id uint, externalID string, force bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item Item
		if err := tx.First(&item, id).Error; err != nil {
			if cerr.Is(err, gorm.ErrRecordNotFound) {
				return syncerr.NotFoundf("item %d", id)
			}
			return cerr.Wrapf(err, "get item %d", id)
		}
		if item.ExternalID != nil {
			if *item.ExternalID == externalID {
				return nil
			}
			if !force {
				return cerr.Newf("item %d external id already set to %q", id, *item.ExternalID)
			}
		}
		return tx.Model(&item).Update("external_id", externalID).Error
	})
}

func (s *Gorm) DeleteItem(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&Item{}, id)
	if res.Error != nil {
		return cerr.Wrapf(res.Error, "delete item %d", id)
	}
	if res.RowsAffected == 0 {
		return syncerr.NotFoundf("item %d", id)
	}
	return nil
}

// WithListLock serializes critical sections per list with a Postgres
// advisory lock. The lock is transaction-scoped, so it releases on commit or
// rollback; fn runs its store calls on the regular pool, the transaction
// exists only to hold the lock.
func (s *Gorm) WithListLock(ctx context.Context, listID uint, fn func(ctx context.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(listID)).Error; err != nil {
			return cerr.Wrapf(err, "advisory lock for list %d", listID)
		}
		return fn(ctx)
	})
}

func (s *Gorm) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return cerr.Wrap(err, "unwrap sql.DB")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// Close releases the underlying connection pool.
func (s *Gorm) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return cerr.Wrap(err, "unwrap sql.DB")
	}
	return sqlDB.Close()
}
