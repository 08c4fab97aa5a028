package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/leadsmagics/crm-backend/internal/config"
)

// Applies the schema and demo data. Pass file paths as arguments to
// run a subset instead of the default set.
func main() {
	cfg := config.Load()
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	seedFiles := os.Args[1:]
	if len(seedFiles) == 0 {
		seedFiles = []string{
			"seed/schema.sql",
			"seed/contacts.sql",
			"seed/templates.sql",
			"seed/campaigns.sql",
		}
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			log.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	fmt.Println("Database seeding completed successfully!")
}
