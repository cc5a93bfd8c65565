// Command migrate applies or rolls back the Postgres schema under
// db/migrations using the project's loaded configuration for the
// connection DSN.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/config"
)

func main() {
	upFlag := flag.Bool("up", false, "apply all pending migrations")
	downFlag := flag.Bool("down", false, "roll back one migration")
	versionFlag := flag.Int("version", 0, "migrate to a specific version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("migrate: load config: %v", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	m, err := migrate.New("file://db/migrations", dsn)
	if err != nil {
		log.Fatalf("migrate: create instance: %v", err)
	}
	defer m.Close()

	switch {
	case *upFlag:
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migrate: up: %v", err)
		}
		log.Println("migrate: up completed")
	case *downFlag:
		if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migrate: down: %v", err)
		}
		log.Println("migrate: down completed")
	case *versionFlag > 0:
		if err := m.Migrate(uint(*versionFlag)); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migrate: to version %d: %v", *versionFlag, err)
		}
		log.Printf("migrate: migrated to version %d", *versionFlag)
	default:
		log.Fatal("migrate: specify -up, -down, or -version")
	}
}
