package adapter

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mirkobrombin/go-strata/v1/criteria"
	strataerrors "github.com/mirkobrombin/go-strata/v1/errors"
	"github.com/mirkobrombin/go-strata/v1/schema"
)

const (
	defaultGormTableName = "strata_records"
	defaultGormOpTimeout = 5 * time.Second
)

// gormRow is the internal model storing one record. The auto-increment
// primary key doubles as the record ordinal, which relational backends
// guarantee monotonic and never reused.
type gormRow struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Collection string `gorm:"index;column:collection"`
	Data       []byte `gorm:"column:data"`
}

// gormSchema is the internal model storing collection layouts.
type gormSchema struct {
	Collection string `gorm:"primaryKey;column:collection"`
	Definition []byte `gorm:"column:definition"`
}

// Gorm is an Adapter backed by any GORM-supported database. It also
// implements Transactor through the database's own transactions, so
// wrappers built on it use the native strategy.
type Gorm struct {
	db      *gorm.DB
	table   string
	timeout time.Duration
}

// GormOption configures a Gorm adapter.
type GormOption func(*gormOptions)

type gormOptions struct {
	table   string
	timeout time.Duration
}

// WithGormTable overrides the record table name.
func WithGormTable(name string) GormOption {
	return func(o *gormOptions) {
		o.table = name
	}
}

// WithGormTimeout sets the per-operation timeout.
func WithGormTimeout(d time.Duration) GormOption {
	return func(o *gormOptions) {
		o.timeout = d
	}
}

// NewGorm returns a Gorm adapter, migrating its two internal tables.
func NewGorm(db *gorm.DB, opts ...GormOption) (*Gorm, error) {
	o := gormOptions{table: defaultGormTableName, timeout: defaultGormOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if err := db.Table(o.table).AutoMigrate(&gormRow{}); err != nil {
		return nil, err
	}
	if err := db.Table(o.table + "_schemas").AutoMigrate(&gormSchema{}); err != nil {
		return nil, err
	}
	return &Gorm{db: db, table: o.table, timeout: o.timeout}, nil
}

func (a *Gorm) rows() *gorm.DB {
	return a.db.Table(a.table)
}

func (a *Gorm) schemas() *gorm.DB {
	return a.db.Table(a.table + "_schemas")
}

func (a *Gorm) mapErr(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return strataerrors.ErrTimeout
	}
	return err
}

// Define implements Adapter.Define.
func (a *Gorm) Define(ctx context.Context, name string, def schema.Definition) error {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	row := gormSchema{Collection: name, Definition: data}
	err = a.schemas().WithContext(cctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}},
		DoUpdates: clause.AssignmentColumns([]string{"definition"}),
	}).Create(&row).Error
	return a.mapErr(err)
}

// Describe implements Adapter.Describe.
func (a *Gorm) Describe(ctx context.Context, name string) (schema.Definition, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	var row gormSchema
	err := a.schemas().WithContext(cctx).Where("collection = ?", name).First(&row).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, a.mapErr(err)
	}
	var def schema.Definition
	if err := json.Unmarshal(row.Definition, &def); err != nil {
		return nil, false, err
	}
	return def, true, nil
}

// Drop implements Adapter.Drop.
func (a *Gorm) Drop(ctx context.Context, name string) error {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.rows().WithContext(cctx).Where("collection = ?", name).Delete(&gormRow{}).Error; err != nil {
		return a.mapErr(err)
	}
	err := a.schemas().WithContext(cctx).Where("collection = ?", name).Delete(&gormSchema{}).Error
	return a.mapErr(err)
}

// Create implements Adapter.Create.
func (a *Gorm) Create(ctx context.Context, name string, record map[string]any) (map[string]any, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	row := gormRow{Collection: name, Data: data}
	if err := a.rows().WithContext(cctx).Create(&row).Error; err != nil {
		return nil, a.mapErr(err)
	}
	stored := make(map[string]any, len(record)+1)
	for k, v := range record {
		stored[k] = v
	}
	stored["id"] = row.ID
	// persist the assigned ordinal inside the blob as well
	data, err = json.Marshal(stored)
	if err != nil {
		return nil, err
	}
	if err := a.rows().WithContext(cctx).Where("id = ?", row.ID).Update("data", data).Error; err != nil {
		return nil, a.mapErr(err)
	}
	return stored, nil
}

func (a *Gorm) scan(ctx context.Context, name string) ([]gormRow, []map[string]any, error) {
	var rows []gormRow
	if err := a.rows().WithContext(ctx).Where("collection = ?", name).Order("id").Find(&rows).Error; err != nil {
		return nil, nil, a.mapErr(err)
	}
	records := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		var rec map[string]any
		if err := json.Unmarshal(row.Data, &rec); err != nil {
			return nil, nil, err
		}
		rec["id"] = row.ID
		records = append(records, rec)
	}
	return rows, records, nil
}

// Find implements Adapter.Find.
func (a *Gorm) Find(ctx context.Context, name string, c criteria.Criteria) ([]map[string]any, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	_, records, err := a.scan(cctx, name)
	if err != nil {
		return nil, err
	}
	return c.Apply(records), nil
}

// Count implements Adapter.Count.
func (a *Gorm) Count(ctx context.Context, name string, c criteria.Criteria) (int64, error) {
	records, err := a.Find(ctx, name, c)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// Update implements Adapter.Update.
func (a *Gorm) Update(ctx context.Context, name string, c criteria.Criteria, values map[string]any) ([]map[string]any, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	_, records, err := a.scan(cctx, name)
	if err != nil {
		return nil, err
	}
	var updated []map[string]any
	for _, rec := range records {
		if !c.Matches(rec) {
			continue
		}
		for k, v := range values {
			if k == "id" {
				continue
			}
			rec[k] = v
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		err = a.rows().WithContext(cctx).Where("id = ?", rec["id"]).Update("data", data).Error
		if err != nil {
			return nil, a.mapErr(err)
		}
		updated = append(updated, rec)
	}
	return updated, nil
}

// Destroy implements Adapter.Destroy.
func (a *Gorm) Destroy(ctx context.Context, name string, c criteria.Criteria) error {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	_, records, err := a.scan(cctx, name)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if !c.Matches(rec) {
			continue
		}
		err := a.rows().WithContext(cctx).Where("id = ?", rec["id"]).Delete(&gormRow{}).Error
		if err != nil {
			return a.mapErr(err)
		}
	}
	return nil
}

// Transaction implements Transactor using the database transaction. The
// name is unused: relational isolation covers every collection at once.
func (a *Gorm) Transaction(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.db.WithContext(cctx).Transaction(func(tx *gorm.DB) error {
		return fn(cctx)
	})
}
