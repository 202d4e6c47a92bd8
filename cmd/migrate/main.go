// Command migrate creates the gateway's PostgreSQL tables. The server does
// the same at boot; run this when the server's database role cannot
// create tables.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/masivos/admin-gateway/internal/repository/postgres"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	listOnly := len(os.Args) > 1 && os.Args[1] == "--list"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if listOnly {
		rows, err := db.QueryContext(ctx,
			"SELECT tablename FROM pg_tables WHERE schemaname='public' AND tablename LIKE 'bulk_%' ORDER BY tablename")
		if err != nil {
			log.Fatal(err)
		}
		defer rows.Close()
		n := 0
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				log.Fatal(err)
			}
			fmt.Println(" ", t)
			n++
		}
		fmt.Printf("Total: %d tables\n", n)
		return
	}

	if err := postgres.NewBulkRunRepo(db).EnsureSchema(ctx); err != nil {
		log.Fatalf("bulk_runs: %v", err)
	}
	log.Println("bulk_runs is up to date")
}
