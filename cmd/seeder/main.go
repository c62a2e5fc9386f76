package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/syntropic/vecfeed"
	"github.com/syntropic/vecfeed/extract"
)

var sentences = []string{
	"All expense reports must be submitted within thirty days of the purchase date.",
	"Remote employees are expected to be reachable during core collaboration hours.",
	"Access to production systems requires an approved change ticket.",
	"The incident commander owns communication until the postmortem is published.",
	"Quarterly access reviews cover every system that stores customer data.",
	"Contractors receive equipment through the standard provisioning request.",
	"Security patches are applied to staging at least one week before production.",
	"Travel booked outside the approved portal is reimbursed at the portal rate.",
	"Each service must define an error budget before its launch review.",
	"Customer data may not leave the approved processing regions.",
	"On-call rotations may not exceed one week in four without sign-off.",
	"New hires complete security awareness training in their first month.",
	"Database migrations run behind a feature flag until verified in canary.",
	"Vendor contracts above the threshold require two approving signatures.",
	"Design documents are circulated at least three days before the review.",
	"Backups are restored to a clean environment every quarter as a drill.",
	"Meeting rooms are released automatically after ten minutes unoccupied.",
	"Source code may only be mirrored to infrastructure the company controls.",
	"Performance reviews use the rubric published by the people team.",
	"Laptops report compliance status before receiving VPN credentials.",
	"API deprecations require ninety days of notice to external consumers.",
	"The staging environment is wiped and rebuilt from fixtures every Sunday.",
	"Holiday coverage is arranged within the team before the freeze begins.",
	"Printer firmware is updated by facilities, not by individual teams.",
}

var (
	rootDir      = flag.String("root", "./seed_corpus", "directory the sample corpus is written to")
	dataDir      = flag.String("data-dir", "./vecfeed_data", "vecfeed data directory")
	docCount     = flag.Int("docs", 12, "number of sample documents to generate")
	seedFileName = flag.String("src", "", "file of seed sentences, one per line")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// writeCorpus lays out count documents under root, spread across role
// subdirectories. Each document cycles through the seed lines with a
// shifting offset so no two share the same opening.
func writeCorpus(root string, lines []string, count int) error {
	roles := []string{"engineering", "policies", "handbook"}

	for i := range count {
		dir := filepath.Join(root, roles[i%len(roles)])
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		var b strings.Builder
		for p := range 10 {
			for s := range 4 {
				if s > 0 {
					b.WriteString(" ")
				}
				b.WriteString(lines[(i*7+p*4+s)%len(lines)])
			}
			b.WriteString("\n\n")
		}

		path := filepath.Join(dir, fmt.Sprintf("doc_%02d.txt", i))
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	// Determine source of seed lines
	lines := sentences
	if *seedFileName != "" {
		source, err := linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
		lines = slices.Collect(source)
		if len(lines) == 0 {
			panic("seed file is empty")
		}
	}

	if err := writeCorpus(*rootDir, lines, *docCount); err != nil {
		panic(err)
	}

	feed, err := vecfeed.Open(*dataDir)
	if err != nil {
		panic(err)
	}
	defer feed.Close()

	extractor, err := extract.New(*rootDir)
	if err != nil {
		panic(err)
	}

	pipeline, err := feed.NewIngestPipeline(extractor)
	if err != nil {
		panic(err)
	}

	report, err := pipeline.IngestDir(context.Background())
	if err != nil {
		panic(err)
	}

	slog.Info("seed corpus ready",
		"root", *rootDir,
		"files", report.Files,
		"chunks", report.Chunks,
		"skipped", report.Skipped)
}
