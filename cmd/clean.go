package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"imagedupes/internal/fileutil"
	"imagedupes/internal/models"
	"imagedupes/internal/storage"
)

var (
	cleanDryRun    bool
	cleanMoveTo    string
	cleanPermanent bool
	cleanNoConfirm bool
	cleanGroupIDs  []int
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove or move the duplicates found by the last scan",
	Long: `Remove duplicate images, keeping one image of each stored set.

The kept image is the one chosen at scan time by --keep: the first image of
the set (seed) or the highest quality one (best). The others are moved to the
trash by default.

Options:
  --dry-run     Preview what would be removed without actually removing
  --permanent   Delete files permanently instead of moving to trash
  --move-to     Move duplicates to a specific folder
  --yes         Skip confirmation prompt
  --group       Specify set IDs to clean (can be used multiple times)

Example:
  imagedupes clean                     # Move to trash (default)
  imagedupes clean --permanent         # Delete permanently
  imagedupes clean --move-to=./backup  # Move to specific folder
  imagedupes clean --dry-run           # Preview only
  imagedupes clean --group=1 --group=3 # Clean only sets 1 and 3`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVarP(&cleanDryRun, "dry-run", "n", false, "Preview without removing")
	cleanCmd.Flags().BoolVar(&cleanPermanent, "permanent", false, "Delete permanently instead of moving to trash")
	cleanCmd.Flags().StringVar(&cleanMoveTo, "move-to", "", "Move duplicates to this folder")
	cleanCmd.Flags().BoolVarP(&cleanNoConfirm, "yes", "y", false, "Skip confirmation prompt")
	cleanCmd.Flags().IntSliceVarP(&cleanGroupIDs, "group", "g", nil, "Set IDs to clean (can be specified multiple times)")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStorage(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	groups, err := store.GetDuplicateGroups()
	if err != nil {
		return fmt.Errorf("failed to get groups: %w", err)
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate sets found.")
		return nil
	}

	if len(cleanGroupIDs) > 0 {
		groups = filterGroups(groups, cleanGroupIDs)
		if len(groups) == 0 {
			fmt.Printf("No matching sets found for IDs: %v\n", cleanGroupIDs)
			fmt.Println("Run 'imagedupes list' to see available set IDs.")
			return nil
		}
		fmt.Printf("Processing %d selected set(s): %v\n\n", len(groups), cleanGroupIDs)
	}

	var (
		toRemove  []string
		totalSize int64
	)
	for _, group := range groups {
		for _, img := range group.Remove {
			if _, err := os.Stat(img.Path); err != nil {
				logger.WithField("path", img.Path).Debug("already gone")
				continue
			}
			toRemove = append(toRemove, img.Path)
			totalSize += img.FileSize
		}
	}

	if len(toRemove) == 0 {
		fmt.Println("No files to remove (files may have been already deleted).")
		return nil
	}

	remover := fileutil.NewRemover(cleanPermanent, cleanMoveTo)
	action := strings.ToLower(remover.Verb())

	fmt.Printf("Will remove %d files (%s): %s\n\n", len(toRemove), formatSize(totalSize), action)

	if cleanDryRun {
		fmt.Println("Files to be removed:")
		for _, path := range toRemove {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
		fmt.Println("(Dry run - no files were modified)")
		fmt.Println("Run without --dry-run to actually remove files.")
		return nil
	}

	if !cleanNoConfirm {
		fmt.Printf("Are you sure you want to remove %d files? [y/N]: ", len(toRemove))
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	log := logger.WithField("method", remover.Method())
	var processed, failed int
	for _, path := range toRemove {
		if err := remover.Remove(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to process %s: %v\n", path, err)
			log.WithField("path", path).WithError(err).Error("remove failed")
			failed++
			continue
		}
		processed++
		if err := store.DeleteImage(path); err != nil {
			log.WithField("path", path).WithError(err).Warn("failed to update database")
		}
	}

	fmt.Println()
	fmt.Printf("%s: %d files\n", remover.Verb(), processed)
	if failed > 0 {
		fmt.Printf("Failed: %d files\n", failed)
	}
	if remaining, err := store.GetGroupCount(); err == nil {
		fmt.Printf("Remaining duplicate sets: %d\n", remaining)
	}

	return nil
}

func filterGroups(groups []*models.DuplicateGroup, ids []int) []*models.DuplicateGroup {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var filtered []*models.DuplicateGroup
	for _, group := range groups {
		if want[group.ID] {
			filtered = append(filtered, group)
		}
	}
	return filtered
}
