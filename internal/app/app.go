package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/servepics/servepics/internal/config"
	"github.com/servepics/servepics/internal/db"
	"github.com/servepics/servepics/internal/repository"
	"github.com/servepics/servepics/internal/service"
	"github.com/servepics/servepics/internal/storage"
)

type App struct {
	Cfg          *config.Config
	DB           *sqlx.DB
	UserService  *service.UserService
	DriveService *service.DriveService
	AdminService *service.AdminService
	Reaper       *service.Reaper
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	fileRegistry := repository.NewFileRegistry(database)

	// Blob storage
	blobStore, err := storage.NewLocalStore(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %v", err)
	}

	// Services
	userService := service.NewUserService(userRepository)
	driveService := service.NewDriveService(database, userRepository, fileRegistry, blobStore)
	adminService := service.NewAdminService(database, userRepository, fileRegistry, blobStore)
	reaper := service.NewReaper(fileRegistry, blobStore, cfg.ReaperInterval, cfg.ReaperGrace)

	// Default admin account
	err = userService.BootstrapAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap admin account: %v", err)
	}

	return &App{
		Cfg:          cfg,
		DB:           database,
		UserService:  userService,
		DriveService: driveService,
		AdminService: adminService,
		Reaper:       reaper,
	}, nil
}

func (a *App) Close() error {
	return db.Close(a.DB)
}
