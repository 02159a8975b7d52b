package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type roundRecord struct {
	ID           uint   `gorm:"primaryKey"`
	RoomID       string `gorm:"size:16;index"`
	RoomName     string `gorm:"size:64"`
	Issue        string `gorm:"size:256"`
	CardSet      string `gorm:"size:16"`
	Average      *float64
	Distribution map[string]int `gorm:"serializer:json"`
	Voters       int
	RevealedAt   time.Time `gorm:"index"`
}

func (roundRecord) TableName() string { return "revealed_rounds" }

func toRecord(r Round) roundRecord {
	return roundRecord{
		RoomID:       r.RoomID,
		RoomName:     r.RoomName,
		Issue:        r.Issue,
		CardSet:      r.CardSet,
		Average:      r.Average,
		Distribution: r.Distribution,
		Voters:       r.Voters,
		RevealedAt:   r.RevealedAt.UTC(),
	}
}

type PostgresSink struct {
	db *gorm.DB
}

// OpenPostgres connects through pgx and migrates the rounds table.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	sqlDB := stdlib.OpenDB(*cfg)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&roundRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) SaveRound(ctx context.Context, r Round) error {
	rec := toRecord(r)
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *PostgresSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
