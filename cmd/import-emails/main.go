package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"mailpipe/internal/app"
	"mailpipe/internal/config"
	"mailpipe/internal/emails"
	"mailpipe/internal/mail"
	"mailpipe/internal/models"
)

func main() {
	emlPath := flag.String("eml", "", "Path to EML file or directory containing EML files")
	mboxPath := flag.String("mbox", "", "Path to MBOX file")
	accountID := flag.String("account", "", "Account id the imported emails are indexed under (default: archive-<file name>)")
	folderName := flag.String("folder", "INBOX", "Provider folder name the archive came from")
	flag.Parse()

	if *emlPath == "" && *mboxPath == "" {
		fmt.Println("Usage:")
		fmt.Println("  Import EML files:  import-emails -eml /path/to/file.eml")
		fmt.Println("  Import directory:  import-emails -eml /path/to/directory")
		fmt.Println("  Import MBOX:       import-emails -mbox /path/to/file.mbox")
		fmt.Println("  Target account:    import-emails -mbox /path -account sales-archive -folder \"[Gmail]/Sent Mail\"")
		fmt.Println()
		fmt.Println("Archive messages are numbered by read position, so two archives imported")
		fmt.Println("under the same -account overwrite each other. Use one account per archive.")
		os.Exit(1)
	}

	if *accountID == "" {
		source := *emlPath
		if source == "" {
			source = *mboxPath
		}
		*accountID = archiveAccountID(source)
	}
	fmt.Printf("Indexing under account: %s\n", *accountID)

	cfg := config.Load()
	logger := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer func() { _ = a.Close() }()

	imp := &importer{
		ctx:       ctx,
		app:       a,
		accountID: *accountID,
		folder:    mail.MapFolder(*folderName),
		batchSize: cfg.BatchSize,
	}

	if *emlPath != "" {
		fmt.Printf("Importing EML from: %s\n", *emlPath)

		info, err := os.Stat(*emlPath)
		if err != nil {
			log.Fatalf("Failed to access path: %v", err)
		}

		if info.IsDir() {
			err = emails.WalkEML(*emlPath, func(_ string, data []byte) error {
				return imp.add(data)
			})
		} else if strings.HasSuffix(strings.ToLower(*emlPath), ".eml") {
			var data []byte
			if data, err = emails.ReadEMLFile(*emlPath); err == nil {
				err = imp.add(data)
			}
		} else {
			log.Fatalf("Invalid file type. Expected .eml file or directory")
		}
		if err != nil {
			log.Fatalf("Failed to import EML: %v", err)
		}
	} else {
		fmt.Printf("Importing MBOX file: %s\n", *mboxPath)
		if _, err := emails.ScanMBOXFile(*mboxPath, imp.add); err != nil {
			log.Fatalf("Failed to import MBOX: %v", err)
		}
	}
	imp.flush()

	fmt.Println("\n✓ Email import complete!")
	fmt.Printf("  - Read:    %d messages\n", imp.read)
	fmt.Printf("  - Indexed: %d emails\n", imp.indexed)
}

// archiveAccountID derives a per-archive account id from its file or directory name
func archiveAccountID(path string) string {
	base := filepath.Base(filepath.Clean(path))
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}

	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" || name == "." {
		return "archive"
	}
	return "archive-" + name
}

// importer numbers archive messages in read order and feeds them to the
// pipeline one batch at a time
type importer struct {
	ctx       context.Context
	app       *app.App
	accountID string
	folder    models.Folder
	batchSize int

	pending []mail.RawMessage
	read    int
	indexed int
}

func (imp *importer) add(data []byte) error {
	if err := imp.ctx.Err(); err != nil {
		return err
	}
	imp.read++
	imp.pending = append(imp.pending, emails.RawFromBytes(uint32(imp.read), data))
	if len(imp.pending) >= imp.batchSize {
		imp.flush()
	}
	return nil
}

func (imp *importer) flush() {
	if len(imp.pending) == 0 {
		return
	}
	imp.indexed += imp.app.Coordinator.Ingest(imp.ctx, imp.accountID, imp.folder, imp.pending)
	fmt.Printf("[IMPORT] Processed %d messages (%d indexed)\n", imp.read, imp.indexed)
	imp.pending = nil
}
