package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/wadjakorntonsri/nexlink/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/nexlink/pkg/codec"
	"github.com/wadjakorntonsri/nexlink/pkg/config"
	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
	"github.com/wadjakorntonsri/nexlink/pkg/core/services"
	"github.com/wadjakorntonsri/nexlink/pkg/logger"
	"go.uber.org/zap"
)

const usage = "expected 'export', 'import' or 'stats' subcommands"

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importFile := importCmd.String("file", "", "JSON file to import")
	statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)
	statsCode := statsCmd.String("code", "", "short code to report on")

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.Load()
	zl, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		zl.Fatal("failed to connect to db", zap.Error(err))
	}
	defer repo.Close()

	ctx := context.Background()
	switch os.Args[1] {
	case "export":
		_ = exportCmd.Parse(os.Args[2:])
		err = doExport(ctx, repo, os.Stdout)
	case "import":
		_ = importCmd.Parse(os.Args[2:])
		if *importFile == "" {
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		var f *os.File
		if f, err = os.Open(*importFile); err == nil {
			var imported, skipped int
			imported, skipped, err = doImport(ctx, repo, f, zl)
			_ = f.Close()
			zl.Info("import finished", zap.Int("imported", imported), zap.Int("skipped", skipped))
		}
	case "stats":
		_ = statsCmd.Parse(os.Args[2:])
		if *statsCode == "" {
			statsCmd.PrintDefaults()
			os.Exit(1)
		}
		err = doStats(ctx, repo, *statsCode, os.Stdout)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		zl.Fatal(os.Args[1]+" failed", zap.Error(err))
	}
}

func doExport(ctx context.Context, repo *sqlite.SQLiteRepository, w io.Writer) error {
	links, err := repo.Dump(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return errors.Wrap(encoder.Encode(links), "encode links")
}

// doImport loads links exported by doExport. Rows whose code already exists
// are skipped. Rows without a code are treated as legacy rows: they get an
// id first and then the code derived from it.
func doImport(ctx context.Context, repo *sqlite.SQLiteRepository, r io.Reader, zl *zap.Logger) (imported, skipped int, err error) {
	var links []domain.Link
	if err := json.NewDecoder(r).Decode(&links); err != nil {
		return 0, 0, errors.Wrap(err, "decode links")
	}

	for _, l := range links {
		if l.ShortCode == "" {
			if err := importLegacy(ctx, repo, l); err != nil {
				zl.Warn("failed to import legacy link", zap.String("original_url", l.OriginalURL), zap.Error(err))
				skipped++
				continue
			}
			imported++
			continue
		}

		exists, err := repo.ExistsByShortCode(ctx, l.ShortCode)
		if err != nil {
			return imported, skipped, err
		}
		if exists {
			zl.Info("skipping existing code", zap.String("short_code", l.ShortCode))
			skipped++
			continue
		}

		id, err := repo.NextID(ctx)
		if err != nil {
			return imported, skipped, err
		}
		link := l
		link.ID = id
		if link.CreatedAt.IsZero() {
			link.CreatedAt = time.Now().UTC()
		}
		if err := repo.Create(ctx, &link); err != nil {
			zl.Warn("failed to import link", zap.String("short_code", l.ShortCode), zap.Error(err))
			skipped++
			continue
		}
		imported++
	}
	return imported, skipped, nil
}

func importLegacy(ctx context.Context, repo *sqlite.SQLiteRepository, l domain.Link) error {
	id, err := repo.CreateProvisional(ctx, l.OriginalURL, l.Owner)
	if err != nil {
		return err
	}
	if err := repo.SetCode(ctx, id, codec.Encode(uint64(id))); err != nil {
		// Leave no unresolvable row behind.
		_ = repo.Delete(ctx, id)
		return err
	}
	return nil
}

func doStats(ctx context.Context, repo *sqlite.SQLiteRepository, code string, w io.Writer) error {
	link, err := repo.GetByShortCode(ctx, code)
	if err != nil {
		return err
	}

	since := time.Now().UTC().Add(-services.AnalyticsWindow)
	days, err := repo.DailyCounts(ctx, link.ID, since)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s -> %s\n", link.ShortCode, link.OriginalURL)
	fmt.Fprintf(w, "total clicks: %d\n", link.ClicksCount)
	for _, d := range days {
		fmt.Fprintf(w, "  %s  %d\n", d.Day.UTC().Format(services.DayLabelLayout), d.Count)
	}
	return nil
}
