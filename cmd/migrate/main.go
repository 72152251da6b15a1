package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"falldetector/internal/config"
	"falldetector/internal/model"
	"falldetector/internal/repository/sqlite"
	"falldetector/internal/service/storage"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	snapshotDir := flag.String("snapshots", cfg.SnapshotDirectory, "Directory containing snapshots")
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	flag.Parse()

	fmt.Printf("Migrating snapshots from %s to database %s\n", *snapshotDir, *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	events := sqlite.NewEventRepository(db)
	detections := sqlite.NewDetectionRepository(db)

	files, err := os.ReadDir(*snapshotDir)
	if err != nil {
		log.Fatalf("Failed to read snapshot directory: %v", err)
	}

	inserted, existing, skipped := 0, 0, 0
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".jpg" {
			continue
		}

		if ev, err := events.GetByFilename(file.Name()); err != nil {
			log.Printf("⚠️  Failed to look up %s: %v", file.Name(), err)
			skipped++
			continue
		} else if ev != nil {
			existing++
			continue
		}

		timestamp, source, labels, err := storage.ParseFilename(file.Name())
		if err != nil {
			log.Printf("⚠️  Skipping %s: %v", file.Name(), err)
			skipped++
			continue
		}

		info, err := file.Info()
		if err != nil {
			log.Printf("⚠️  Failed to get info for %s: %v", file.Name(), err)
			skipped++
			continue
		}

		ev := &model.Event{
			ID:        uuid.New().String(),
			Source:    source,
			Timestamp: timestamp,
			Filename:  file.Name(),
			FilePath:  filepath.Join(*snapshotDir, file.Name()),
			FileSize:  info.Size(),
		}
		if err := events.Insert(ev); err != nil {
			log.Printf("⚠️  Failed to insert %s: %v", file.Name(), err)
			skipped++
			continue
		}

		// Box geometry and scores are not recoverable from the name; labels are.
		rows := make([]model.Detection, 0, len(labels))
		for _, label := range labels {
			rows = append(rows, model.Detection{EventID: ev.ID, Label: label, ClassID: -1})
		}
		if len(rows) > 0 {
			if err := detections.InsertBatch(rows); err != nil {
				log.Printf("⚠️  Failed to insert labels for %s: %v", file.Name(), err)
			}
		}
		inserted++
	}

	fmt.Printf("✅ Migrated %d snapshots (%d already present)\n", inserted, existing)
	if skipped > 0 {
		fmt.Printf("⚠️  Skipped %d files (invalid format or errors)\n", skipped)
	}

	count, err := events.GetTotalCount(nil)
	if err != nil {
		return
	}
	size, _ := events.GetTotalSize()
	allLabels, _ := detections.GetAllLabels()

	fmt.Printf("\n📊 Database Statistics:\n")
	fmt.Printf("   Total events: %d\n", count)
	fmt.Printf("   Total size: %d bytes\n", size)
	fmt.Printf("   Labels: %v\n", allLabels)
}
