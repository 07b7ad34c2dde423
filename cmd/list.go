package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"imagedupes/internal/models"
	"imagedupes/internal/storage"
)

var (
	listJSON    bool
	listVerbose bool
	listSummary bool
	listHistory bool
	listLimit   int
	listOffset  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the duplicate sets of the last scan",
	Long: `Display the duplicate sets stored by the last scan.

Each set shows its images in scan order. The image that 'clean' keeps is
marked with ✓, the ones it removes with ✗.

Example:
  imagedupes list              # Show first 10 sets (default)
  imagedupes list -n 0         # Show all sets
  imagedupes list -s           # Summary view (compact)
  imagedupes list --offset 10  # Sets 11-20
  imagedupes list --history    # Previous scans`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show detailed image info")
	listCmd.Flags().BoolVarP(&listSummary, "summary", "s", false, "Show summary only (set counts and sizes)")
	listCmd.Flags().BoolVar(&listHistory, "history", false, "Show scan history instead of sets")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Limit number of sets to display (0 = all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip first N sets (for pagination)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStorage(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if listHistory {
		return printHistory(store)
	}

	groups, err := store.GetDuplicateGroups()
	if err != nil {
		return fmt.Errorf("failed to get groups: %w", err)
	}

	if listJSON {
		result := models.ScanResult{
			TotalGroups:     len(groups),
			TotalDuplicates: countDuplicates(groups),
			Groups:          groups,
		}
		last, err := store.LastScan()
		switch {
		case err == nil:
			result.ScanID = last.ID.String()
			result.TotalScanned = last.TotalImages
			result.TotalSkipped = last.TotalSkipped
		case !errors.Is(err, storage.ErrNoScans):
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate sets found.")
		fmt.Println("Run 'imagedupes scan <dir>' to scan for duplicates.")
		return nil
	}

	var totalSavings int64
	for _, group := range groups {
		for _, img := range group.Remove {
			totalSavings += img.FileSize
		}
	}

	fmt.Printf("Found %d duplicate sets (%d duplicates, %s reclaimable)\n\n",
		len(groups), countDuplicates(groups), formatSize(totalSavings))

	totalGroups := len(groups)
	page, startIdx := paginate(groups, listOffset, listLimit)

	if len(page) == 0 {
		fmt.Printf("No sets in range (offset %d exceeds total %d)\n", listOffset, totalGroups)
	} else if listSummary {
		printSummaryTable(page)
	} else {
		for _, group := range page {
			printGroup(group, listVerbose)
		}
	}

	endIdx := startIdx + len(page)
	if len(page) > 0 {
		fmt.Printf("Showing sets %d-%d of %d\n", startIdx+1, endIdx, totalGroups)
		if endIdx < totalGroups {
			limitArg := ""
			if listLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", listLimit)
			}
			fmt.Printf("Next page: imagedupes list%s --offset %d\n", limitArg, endIdx)
		}
	}

	fmt.Println()
	fmt.Println("Run 'imagedupes clean --dry-run' to preview deletions")
	fmt.Println("Run 'imagedupes clean' to remove duplicates")

	return nil
}

// paginate returns the groups in [offset, offset+limit) and the clamped offset.
// limit <= 0 means no limit.
func paginate(groups []*models.DuplicateGroup, offset, limit int) ([]*models.DuplicateGroup, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(groups) {
		offset = len(groups)
	}
	page := groups[offset:]
	if limit > 0 && limit < len(page) {
		page = page[:limit]
	}
	return page, offset
}

func printHistory(store *storage.Storage) error {
	records, err := store.GetScanHistory(listLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No scans recorded.")
		return nil
	}

	fmt.Printf("%-19s  %-9s  %-6s  %-6s  %-7s  %-5s  %s\n", "Scanned", "Threshold", "Images", "Sets", "Skipped", "Mode", "Folders")
	fmt.Println(strings.Repeat("-", 80))
	for _, r := range records {
		mode := r.Strategy
		if r.Algorithm != "" && r.Algorithm != "average" {
			mode += "/" + r.Algorithm
		}
		fmt.Printf("%-19s  %-9s  %-6d  %-6d  %-7d  %-5s  %s\n",
			r.ScannedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d%%", r.Threshold),
			r.TotalImages, r.TotalGroups, r.TotalSkipped, mode,
			strings.Join(r.Folders, ", "))
	}
	return nil
}

func printSummaryTable(groups []*models.DuplicateGroup) {
	fmt.Printf("%-8s  %-8s  %-12s  %s\n", "Set", "Images", "Reclaimable", "Keep")
	fmt.Println(strings.Repeat("-", 70))

	for _, group := range groups {
		var reclaimable int64
		for _, img := range group.Remove {
			reclaimable += img.FileSize
		}

		keepName := filepath.Base(group.Keep.Path)
		if len(keepName) > 35 {
			keepName = keepName[:32] + "..."
		}

		fmt.Printf("#%-7d  %-8d  %-12s  %s\n",
			group.ID, len(group.Images), formatSize(reclaimable), keepName)
	}
	fmt.Println()
}

func printGroup(group *models.DuplicateGroup, verbose bool) {
	fmt.Printf("Set #%d (%d images)\n", group.ID, len(group.Images))
	fmt.Println(strings.Repeat("-", 60))

	for i, img := range group.Images {
		marker := "✗"
		if img.Path == group.Keep.Path {
			marker = "✓"
		}

		if verbose {
			fmt.Printf("  %s [%d] %s\n", marker, i+1, img.Path)
			fmt.Printf("      Resolution: %dx%d  Format: %s  Size: %s\n",
				img.Width, img.Height, strings.ToUpper(img.Format), formatSize(img.FileSize))
			fmt.Printf("      Modified: %s  EXIF: %t  Score: %.0f\n",
				img.ModTime.Format("2006-01-02 15:04"), img.HasExif, img.Score)
		} else {
			fmt.Printf("  %s [%d] %-40s  %dx%d  %-4s  %8s\n",
				marker, i+1, shortenPath(img.Path, 40), img.Width, img.Height,
				strings.ToUpper(img.Format), formatSize(img.FileSize))
		}
	}
	fmt.Println()
}

// shortenPath keeps the file name and as much of its directory as fits
func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 3
	if len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
