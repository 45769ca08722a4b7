package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// artworkRow is the gorm model for the artworks table.
type artworkRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Version   int32     `gorm:"not null"`
	Data      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (artworkRow) TableName() string { return "artworks" }

func (r artworkRow) record() Record {
	return Record{ID: r.ID, Version: r.Version, Data: r.Data, CreatedAt: r.CreatedAt.UTC()}
}

// Postgres stores records in PostgreSQL through gorm.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects with dsn and migrates the artworks table.
func OpenPostgres(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&artworkRow{}); err != nil {
		return nil, fmt.Errorf("migrate artworks: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Create(ctx context.Context, version int32, data string) (int64, error) {
	row := artworkRow{Version: version, Data: data, CreatedAt: time.Now().UTC()}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, storageErr("create", err)
	}
	return row.ID, nil
}

func (p *Postgres) Get(ctx context.Context, id int64) (Record, bool, error) {
	var row artworkRow
	err := p.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, storageErr("get", err)
	}
	return row.record(), true, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
