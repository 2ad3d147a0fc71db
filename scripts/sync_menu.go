package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"tableside/internal/database"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run upserts the seed file's menu items and can list table salts for QR printing.
func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		seedPath = flag.String("seed", "configs/seed.yaml", "path to seed.yaml")
		dbPath   = flag.String("db", "./data/tableside.db", "path to sqlite db")
		placeID  = flag.Int64("print-salts", 0, "print label and salt of every table in this place")
	)
	flag.Parse()

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *placeID > 0 {
		tables, err := db.GetPlaceTables(ctx, *placeID)
		if err != nil {
			return fmt.Errorf("list tables: %w", err)
		}
		for _, t := range tables {
			fmt.Printf("%s\t%s\n", t.Label, t.Salt)
		}
		return nil
	}

	seed, err := database.LoadSeed(*seedPath)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	if len(seed.MenuItems) == 0 {
		return fmt.Errorf("no menu_items in seed")
	}

	created := 0
	updated := 0
	for i := range seed.MenuItems {
		it := &seed.MenuItems[i]
		if it.Name == "" {
			continue
		}
		if it.ID > 0 {
			err = db.UpdateMenuItem(ctx, it)
			if err == nil {
				updated++
				continue
			}
			if !errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("update %s: %w", it.Name, err)
			}
		}
		if err = db.CreateMenuItem(ctx, it); err != nil {
			return fmt.Errorf("create %s: %w", it.Name, err)
		}
		created++
	}

	fmt.Printf("done: created=%d updated=%d\n", created, updated)
	return nil
}
