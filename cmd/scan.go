package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imagedupes/internal/cluster"
	"imagedupes/internal/fileutil"
	"imagedupes/internal/fingerprint"
	"imagedupes/internal/hash"
	"imagedupes/internal/models"
	"imagedupes/internal/scan"
	"imagedupes/internal/storage"
)

var (
	scanQuiet     bool
	scanDelete    bool
	scanDryRun    bool
	scanAuto      bool
	scanPermanent bool
	scanMoveTo    string
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>...",
	Short: "Scan directories for duplicate images",
	Long: `Scan one or more directories for duplicate and visually similar images.

The scan will:
1. Find supported images (jpg, png, gif, webp, bmp, tiff), skipping hidden files
2. Compute a 64-bit fingerprint for each image
3. Group images whose similarity to a set's first image reaches the threshold
4. Print every set and store it for 'list' and 'clean'

Nothing is removed unless --delete (interactive) or --auto is given. With
--delete you are asked for each set which numbers to remove; 's' skips the
set and 'q' stops.

Example:
  imagedupes scan ./photos
  imagedupes scan -r --threshold 90 ./photos ./backup
  imagedupes scan -r -d ./photos
  imagedupes scan --auto --keep best --move-to ./dupes ./photos`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolP("recursive", "r", false, "Recursively scan directories")
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "Only print the sets, without progress or prompts")
	scanCmd.Flags().BoolVarP(&scanDelete, "delete", "d", false, "Interactively choose files to delete in each set")
	scanCmd.Flags().BoolVarP(&scanDryRun, "dry-run", "n", false, "Only show duplicates, never delete")
	scanCmd.Flags().BoolVar(&scanAuto, "auto", false, "Keep one image per set and remove the rest without asking")
	scanCmd.Flags().String("strategy", string(cluster.Greedy), "Clustering strategy: greedy (compare with set seed) or transitive")
	scanCmd.Flags().String("algorithm", string(fingerprint.KindAverage), "Fingerprint algorithm: average or perceptual (DCT)")
	scanCmd.Flags().String("keep", string(cluster.KeepSeed), "Image kept by --auto: seed (first of the set) or best (highest quality)")
	scanCmd.Flags().Duration("timeout", 30*time.Second, "Give up on a single image after this long")
	scanCmd.Flags().BoolVar(&scanPermanent, "permanent", false, "Delete permanently instead of moving to trash")
	scanCmd.Flags().StringVar(&scanMoveTo, "move-to", "", "Move removed files to this folder instead of the trash")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	threshold, err := cluster.ThresholdFromPercent(cfg.Threshold)
	if err != nil {
		return err
	}
	kind, err := hash.ParseKind(cfg.Algorithm)
	if err != nil {
		return err
	}
	strategy, err := cluster.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	keep, err := cluster.ParseKeepPolicy(cfg.Keep)
	if err != nil {
		return err
	}
	if scanAuto && scanDelete {
		return errors.New("--auto and --delete cannot be combined")
	}

	if kind == fingerprint.KindPerceptual {
		if cfg.HashSize != fingerprint.DefaultHashSize {
			logger.WithField("hash_size", cfg.HashSize).Warn("perceptual fingerprints always use an 8x8 DCT; --hash-size is ignored")
		}
	} else if fingerprint.Truncates(cfg.HashSize) {
		logger.WithField("hash_size", cfg.HashSize).Warnf("hash size above %d: only the first %d grid cells are used", fingerprint.DefaultHashSize, fingerprint.Bits)
	}

	store, err := storage.NewStorage(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	scanID := uuid.New()
	log := logger.WithField("scan_id", scanID.String())

	fmt.Printf("Scanning directories: %s\n", strings.Join(args, ", "))

	var (
		bar     *progressbar.ProgressBar
		barOnce sync.Once
	)
	scanner := scan.NewScanner(
		scan.WithWorkers(cfg.Workers),
		scan.WithTimeout(cfg.Timeout()),
		scan.WithRecursive(cfg.Recursive),
		scan.WithHasher(hash.NewHasher(hash.WithHashSize(cfg.HashSize), hash.WithKind(kind))),
		scan.WithLogger(log),
		scan.WithProgress(func(_, total int, _ string) {
			if scanQuiet {
				return
			}
			barOnce.Do(func() {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Hashing images"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			})
			_ = bar.Add(1)
		}),
	)

	res, err := scanner.ScanFolders(ctx, args)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("scan interrupted")
		}
		return fmt.Errorf("scan failed: %w", err)
	}
	skipped := res.Skipped
	fmt.Printf("Analyzed %d images\n", res.Total)

	builder := cluster.NewBuilder(cluster.WithStrategy(strategy))
	clusters, err := builder.Build(res.Table, threshold)
	if err != nil {
		return fmt.Errorf("clustering failed: %w", err)
	}
	for _, c := range clusters {
		log.WithFields(logrus.Fields{
			"strategy": builder.Strategy(),
			"seed":     c.Seed(),
			"size":     len(c),
		}).Debug("cluster")
	}
	groups := cluster.Groups(clusters, res.Images, keep)

	if err := store.SaveGroups(groups); err != nil {
		return fmt.Errorf("failed to save groups: %w", err)
	}
	record := &storage.ScanRecord{
		ID:              scanID,
		Folders:         absPaths(args),
		Threshold:       cfg.Threshold,
		HashSize:        cfg.HashSize,
		Algorithm:       string(kind),
		Strategy:        string(strategy),
		TotalImages:     res.Table.Len(),
		TotalSkipped:    len(skipped),
		TotalGroups:     len(groups),
		TotalDuplicates: countDuplicates(groups),
	}
	if err := store.RecordScan(record); err != nil {
		log.WithError(err).Warn("failed to record scan history")
	}
	log.WithFields(logrus.Fields{
		"images":    res.Table.Len(),
		"algorithm": res.Table.Kind(),
		"hash_size": res.Table.HashSize(),
		"skipped":   len(skipped),
		"groups":    len(groups),
	}).Info("scan finished")

	if len(skipped) > 0 {
		fmt.Printf("Skipped %d files that could not be read\n", len(skipped))
		if !scanQuiet {
			for _, sk := range skipped {
				fmt.Printf("  %s\n", sk)
			}
		}
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate images found.")
		return nil
	}

	fmt.Printf("\nFound %d sets of similar or duplicate images:\n", len(groups))

	p := &setProcessor{
		in:      bufio.NewReader(cmd.InOrStdin()),
		out:     cmd.OutOrStdout(),
		remover: fileutil.NewRemover(scanPermanent, scanMoveTo),
		store:   store,
		log:     log,
	}
	for _, group := range groups {
		printSet(p.out, group)

		switch {
		case scanDryRun:
			continue
		case scanDelete && !scanQuiet:
			if quit := p.interactive(group); quit {
				fmt.Fprintln(p.out, "Quitting...")
				return nil
			}
		case scanAuto:
			p.automatic(group)
		}
	}

	if p.removed > 0 || p.failed > 0 {
		fmt.Printf("\nRemoved %d files, %d failed\n", p.removed, p.failed)
	} else if !scanDryRun && !scanQuiet {
		fmt.Println("\nRun 'imagedupes clean --dry-run' to preview removal of the duplicates")
	}
	fmt.Printf("\nFinished processing %d images.\n", res.Table.Len())

	return nil
}

func printSet(out io.Writer, group *models.DuplicateGroup) {
	fmt.Fprintf(out, "\nSet %d:\n", group.ID)
	for i, img := range group.Images {
		fmt.Fprintf(out, "  [%d] %s\n", i+1, img.Path)
	}
}

// setProcessor removes files from printed sets, either by asking or by the
// keep policy.
type setProcessor struct {
	in      *bufio.Reader
	out     io.Writer
	remover *fileutil.Remover
	store   *storage.Storage
	log     logrus.FieldLogger

	removed int
	failed  int
}

// interactive asks which members of group to remove. It reports true when the
// user asked to stop.
func (p *setProcessor) interactive(group *models.DuplicateGroup) bool {
	fmt.Fprintln(p.out, "\nWhich files would you like to delete? (Enter numbers separated by spaces, 's' to skip this set, or 'q' to quit)")

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		// no more input behaves like quitting
		return true
	}

	input := strings.ToLower(strings.TrimSpace(line))
	switch input {
	case "q":
		return true
	case "s", "":
		fmt.Fprintln(p.out, "Skipping this set...")
		return false
	}

	indices, invalid := parseSelection(input, len(group.Images))
	for _, tok := range invalid {
		fmt.Fprintf(p.out, "Invalid index: %s\n", tok)
	}
	for _, i := range indices {
		p.remove(group.Images[i].Path, "")
	}
	return false
}

// automatic keeps group.Keep and removes everything else
func (p *setProcessor) automatic(group *models.DuplicateGroup) {
	fmt.Fprintf(p.out, "\nAutomatically keeping: %s\n", group.Keep.Path)
	fmt.Fprintln(p.out, "Removing duplicates:")
	for _, img := range group.Remove {
		p.remove(img.Path, "  ")
	}
}

func (p *setProcessor) remove(path, indent string) {
	if err := p.remover.Remove(path); err != nil {
		p.failed++
		fmt.Fprintf(p.out, "%sFailed to delete %s: %v\n", indent, path, err)
		p.log.WithField("path", path).WithError(err).Error("remove failed")
		return
	}

	p.removed++
	fmt.Fprintf(p.out, "%s%s: %s\n", indent, p.remover.Verb(), path)
	if p.store != nil {
		if err := p.store.DeleteImage(path); err != nil {
			p.log.WithField("path", path).WithError(err).Warn("failed to update database")
		}
	}
}

// parseSelection turns "1 3 x 9" into zero-based indices below n, in input
// order without repeats, plus the tokens that were not valid choices.
func parseSelection(input string, n int) ([]int, []string) {
	var (
		indices []int
		invalid []string
		seen    = make(map[int]bool)
	)
	for _, tok := range strings.Fields(input) {
		i, err := strconv.Atoi(tok)
		if err != nil || i < 1 || i > n {
			invalid = append(invalid, tok)
			continue
		}
		if !seen[i] {
			seen[i] = true
			indices = append(indices, i-1)
		}
	}
	return indices, invalid
}

func countDuplicates(groups []*models.DuplicateGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Remove)
	}
	return n
}

func absPaths(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			d = abs
		}
		out = append(out, d)
	}
	return out
}
