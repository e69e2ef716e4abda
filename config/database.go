package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"volunteerconnect/models"
)

func ConnectDB() error {
	logrus.Info("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
		int(AppConfig.DBConnTimeout.Seconds()),
	)
	logrus.Info("Using connection string: ", maskPassword(dsn))

	gormLogLevel := logger.Warn
	if AppConfig.IsProduction() {
		gormLogLevel = logger.Error
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logrus.Info("Successfully connected to the database")

	logrus.Info("Starting database migration...")
	if err := Migrate(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	if err := SeedAdmin(DB, AppConfig.AdminEmail, AppConfig.AdminPassword, AppConfig.AdminName); err != nil {
		return fmt.Errorf("admin seed failed: %w", err)
	}
	logrus.Info("Database migration completed")
	return nil
}

// CloseDB releases the pool.
func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates the schema and the built-in role rows.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Role{},
		&models.RolePermission{},
		&models.User{},
		&models.Activity{},
		&models.ActivityParticipant{},
		&models.ActivityTask{},
		&models.TaskUser{},
	); err != nil {
		return err
	}
	return SeedRoles(db)
}

// SeedRoles inserts the Admin and Volunteer rows. Raw SQL because gorm treats a zero
// primary key as unset and would auto-assign the Admin id.
func SeedRoles(db *gorm.DB) error {
	builtins := []struct {
		id          int
		name        string
		description string
	}{
		{models.RoleAdminID, "Admin", "Full access to activities, users and roles"},
		{models.RoleVolunteerID, "Volunteer", "Default role for registered volunteers"},
	}

	now := time.Now()
	for _, r := range builtins {
		if err := db.Exec(
			"INSERT INTO roles (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING",
			r.id, r.name, r.description, now, now,
		).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", r.name, err)
		}
	}

	// Explicit ids do not advance the serial sequence on PostgreSQL.
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(
			"SELECT setval(pg_get_serial_sequence('roles', 'id'), GREATEST((SELECT MAX(id) FROM roles), 1))",
		).Error; err != nil {
			return fmt.Errorf("advance roles sequence: %w", err)
		}
	}
	return nil
}

// SeedAdmin creates the bootstrap administrator when no admin exists yet.
func SeedAdmin(db *gorm.DB, email, password, name string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	var admins int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdminID).Count(&admins).Error; err != nil {
		return err
	}
	if admins > 0 {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := models.User{
		Email:        email,
		PasswordHash: string(hashedPassword),
		Name:         name,
		Role:         models.RoleAdminID,
		IsActive:     true,
	}
	if err := db.Where("email = ?", email).
		Assign(map[string]interface{}{"role": models.RoleAdminID, "is_active": true}).
		FirstOrCreate(&admin).Error; err != nil {
		return err
	}

	logrus.WithField("email", email).Info("Bootstrap administrator ready")
	return nil
}
