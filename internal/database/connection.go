package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.GetDSN()

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		dialector = postgres.Open(dsn)
	}

	var logLevel gormlogger.LogLevel
	if cfg.AppEnv == "development" {
		logLevel = gormlogger.Info
	} else {
		logLevel = gormlogger.Error
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	logger.Info("Database connected", "driver", cfg.DBDriver, "host", cfg.DBHost)
	return db, nil
}

// AutoMigrate creates the world and treasury tables and, when withState is set,
// the political state tables.
func AutoMigrate(db *gorm.DB, withState bool) error {
	logger.Info("Running database migrations...")

	tables := []interface{}{
		&models.Realm{},
		&models.Settlement{},
		&models.SettlementResident{},
		&models.TreasuryTransaction{},
	}
	if withState {
		tables = append(tables,
			&models.AuthorityRecord{},
			&models.DecadenceRecord{},
			&models.GovernmentRecord{},
			&models.ActivePolicy{},
			&models.PolicyChangeRecord{},
			&models.VassalageRelationship{},
			&models.VassalageOffer{},
		)
	}

	if err := db.AutoMigrate(tables...); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// SeedDemoWorld creates two small realms when the world is empty. Development only.
func SeedDemoWorld(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Realm{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	logger.Info("Seeding demo world...")
	return db.Transaction(func(tx *gorm.DB) error {
		realms := []models.Realm{
			{ID: uuid.New(), Name: "Aldmoor", Balance: 500},
			{ID: uuid.New(), Name: "Vessaria", Balance: 200},
		}
		if err := tx.Create(&realms).Error; err != nil {
			return err
		}

		settlements := []struct {
			name      string
			realm     *uuid.UUID
			residents []string
		}{
			{name: "Aldmoor Keep", realm: &realms[0].ID, residents: []string{"Edric", "Maud", "Oswin", "Hild", "Wulf", "Agnes"}},
			{name: "Redford", realm: &realms[0].ID, residents: []string{"Tamsin", "Cole"}},
			{name: "Vessa", realm: &realms[1].ID, residents: []string{"Iria", "Petros", "Lio"}},
			{name: "Thornwick", residents: []string{"Bran"}},
		}
		for _, s := range settlements {
			settlement := models.Settlement{ID: uuid.New(), Name: s.name, RealmID: s.realm, ResidentCount: len(s.residents), Balance: 50}
			if err := tx.Create(&settlement).Error; err != nil {
				return err
			}
			for i, name := range s.residents {
				role := models.ResidentRoleResident
				if i == 0 {
					role = models.ResidentRoleMayor
				}
				resident := models.SettlementResident{SettlementID: settlement.ID, ResidentName: name, Role: role}
				if err := tx.Create(&resident).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}
