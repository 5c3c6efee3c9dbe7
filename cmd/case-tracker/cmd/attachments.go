package cmd

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-case-tracker/internal/config"
	"go-case-tracker/internal/downloader"
	"go-case-tracker/internal/helpers"
	"go-case-tracker/internal/messages"
	"go-case-tracker/internal/models"
	"go-case-tracker/internal/paths"
)

const downloadTimeout = 15 * time.Minute

var (
	attachmentsOutFlag       string
	attachmentsOverwriteFlag bool
)

var attachmentsCmd = &cobra.Command{
	Use:   "attachments [CASE_ID]",
	Short: "Download the stored attachments of a case",
	Long: `Downloads the image and IFC model stored for a case. Files are written
below the output directory in a folder named by Attachments.PathPattern
(tags: {caseId}, {caseName}, {kind}, {date}).

Examples:
  case-tracker attachments 7
  case-tracker attachments 7 --out ./anexos --overwrite`,
	Args: cobra.ExactArgs(1),
	RunE: runAttachments,
}

func init() {
	rootCmd.AddCommand(attachmentsCmd)
	attachmentsCmd.Flags().StringVarP(&attachmentsOutFlag, "out", "o", "", "Output directory (overrides Attachments.OutputDir)")
	attachmentsCmd.Flags().BoolVar(&attachmentsOverwriteFlag, "overwrite", false, "Replace files that already exist")
}

func runAttachments(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid case id %q", args[0])
	}

	kase, err := newAPIClient().GetCase(cmd.Context(), id)
	if err != nil {
		return err
	}

	outDir := globalConfig.Attachments.OutputDir
	if attachmentsOutFlag != "" {
		outDir = attachmentsOutFlag
	}
	if outDir == "" {
		outDir = config.DefaultAttachmentsDir
	}
	pattern := globalConfig.Attachments.PathPattern
	if pattern == "" {
		pattern = config.DefaultAttachmentsPattern
	}

	refs := []struct {
		kind  models.AttachmentKind
		label string
		ref   *string
	}{
		{models.KindImage, messages.LabelImage, kase.ImageRef},
		{models.KindModel, "IFC", kase.ModelRef},
	}

	dl := downloader.NewDownloader(downloadClient(), globalConfig.BaseURL)
	writer := uilive.New()
	writer.Out = cmd.ErrOrStderr()
	writer.Start()
	defer writer.Stop()

	found := 0
	for _, r := range refs {
		if r.ref == nil || *r.ref == "" {
			continue
		}
		found++

		rel, err := paths.GeneratePath(pattern, map[string]string{
			paths.TagCaseID:   strconv.Itoa(kase.ID),
			paths.TagCaseName: kase.Name,
			paths.TagKind:     string(r.kind),
			paths.TagDate:     kase.DateLabel(),
		})
		if err != nil {
			return fmt.Errorf("building path for %s: %w", r.kind, err)
		}

		label := r.label
		res, err := dl.DownloadAttachment(cmd.Context(), filepath.Join(outDir, rel), *r.ref, downloader.Options{
			Overwrite: attachmentsOverwriteFlag,
			Progress: func(written, total uint64) {
				if total > 0 {
					fmt.Fprintf(writer, "%-7s %s / %s\n", label, helpers.BytesToSize(written), helpers.BytesToSize(total))
				} else {
					fmt.Fprintf(writer, "%-7s %s\n", label, helpers.BytesToSize(written))
				}
			},
		})
		if err != nil {
			log.WithError(err).WithField("case_id", kase.ID).Errorf("Failed to download %s attachment", r.kind)
			return fmt.Errorf("%s: %w", label, err)
		}

		if res.Skipped {
			fmt.Fprintf(cmd.OutOrStdout(), "%-7s %s ("+messages.AlreadyOnDisk+")\n", label, res.Path)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-7s %s (%s, blake3 %s)\n", label, res.Path, helpers.BytesToSize(res.Size), shortHash(res.Fingerprint))
	}

	if found == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), messages.NoAttachmentsFmt+"\n", kase.ID)
	}
	return nil
}

// downloadClient reuses the configured transport without the short API timeout.
// A nil client lets the downloader build its default one.
func downloadClient() *http.Client {
	if globalHttpTransport == nil || globalHttpTransport == http.DefaultTransport {
		return nil
	}
	return &http.Client{Transport: globalHttpTransport, Timeout: downloadTimeout}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
