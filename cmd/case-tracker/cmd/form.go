package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosuri/uilive"
	"github.com/spf13/cobra"

	"go-case-tracker/internal/config"
	"go-case-tracker/internal/form"
	"go-case-tracker/internal/messages"
	"go-case-tracker/internal/models"
	"go-case-tracker/internal/mutation"
	"go-case-tracker/internal/upload"
)

// Package-level variables for create/edit flags
var (
	formNameFlag  string
	formDescFlag  string
	formImageFlag string
	formModelFlag string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a case",
	Long: `Creates a case with a name, a description and optional attachments.

Examples:
  case-tracker create --name "Torre Norte" --desc "Estrutura metalica" --image foto.png --model torre.ifc`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForm(cmd, models.ModeCreate, nil)
	},
}

var editCmd = &cobra.Command{
	Use:   "edit [CASE_ID]",
	Short: "Edit a case",
	Long: `Loads the case, applies the given fields and uploads replaced attachments.
Attachments that are not given keep their current file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid case id %q", args[0])
		}
		client := newAPIClient()
		target, err := client.GetCase(cmd.Context(), id)
		if err != nil {
			return err
		}
		return runForm(cmd, models.ModeEdit, &target)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(editCmd)
	for _, c := range []*cobra.Command{createCmd, editCmd} {
		c.Flags().StringVarP(&formNameFlag, "name", "n", "", "Case name")
		c.Flags().StringVarP(&formDescFlag, "desc", "d", "", "Case description")
		c.Flags().StringVar(&formImageFlag, "image", "", "Image file to attach")
		c.Flags().StringVar(&formModelFlag, "model", "", "IFC model file to attach")
	}
}

func runForm(cmd *cobra.Command, mode models.Mode, target *models.Case) error {
	a := openApp()
	defer a.Close()

	var (
		warnMu   sync.Mutex
		warnings []string
	)
	done := make(chan mutation.Outcome, 1)

	f := form.New(mode, target, form.Deps{
		Submitter:    a.service,
		Timing:       config.UploadTiming(globalConfig),
		SettleDelay:  config.SettleDelay(globalConfig),
		ImageChooser: upload.NewPathChooser(upload.StaticPath(formImageFlag)),
		ModelChooser: upload.NewPathChooser(upload.StaticPath(formModelFlag)),
		OnWarn: func(kind models.AttachmentKind, reason string) {
			warnMu.Lock()
			warnings = append(warnings, fmt.Sprintf("%s: %s", kind, reason))
			warnMu.Unlock()
		},
		OnDone: func(out mutation.Outcome) { done <- out },
	})
	defer f.Close()

	if cmd.Flags().Changed("name") {
		f.SetName(formNameFlag)
	}
	if cmd.Flags().Changed("desc") {
		f.SetDescription(formDescFlag)
	}
	if formImageFlag != "" {
		f.Image.Click()
	}
	if formModelFlag != "" {
		f.Model.Click()
	}

	warnMu.Lock()
	rejected := strings.Join(warnings, "; ")
	warnMu.Unlock()
	if rejected != "" {
		return errors.New(rejected)
	}

	if err := waitForAttachments(cmd.Context(), cmd.ErrOrStderr(), f); err != nil {
		return err
	}

	if err := f.Submit(cmd.Context()); err != nil {
		if msg := f.Error(); msg != "" {
			return errors.New(msg)
		}
		return err
	}

	out := <-done
	withID, plain := messages.CaseCreatedFmt, messages.CaseCreated
	if mode == models.ModeEdit {
		withID, plain = messages.CaseUpdatedFmt, messages.CaseUpdated
	}
	if out.Case.ID > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), withID+"\n", out.Case.ID, out.Case.Name)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), plain)
	}
	return nil
}

// waitForAttachments renders both slots until neither is loading.
func waitForAttachments(ctx context.Context, out io.Writer, f *form.Controller) error {
	writer := uilive.New()
	writer.Out = out
	writer.Start()
	defer writer.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		img, mdl := f.Image.Snapshot(), f.Model.Snapshot()
		fmt.Fprintf(writer, "%s\n%s\n", attachmentLine(messages.LabelImage, img), attachmentLine(messages.LabelIFC, mdl))
		if img.State != upload.Loading && mdl.State != upload.Loading {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func attachmentLine(label string, s upload.Snapshot) string {
	switch s.State {
	case upload.Loading:
		filled := s.Progress / 5
		return fmt.Sprintf("%-7s %s [%s%s] %3d%%", label, s.DisplayName,
			strings.Repeat("=", filled), strings.Repeat(" ", 20-filled), s.Progress)
	case upload.Settled:
		if !s.HasFile && s.RemoteRef != "" {
			return fmt.Sprintf("%-7s %s ("+messages.SlotCurrentFmt+")", label, s.DisplayName, s.RemoteRef)
		}
		return fmt.Sprintf("%-7s %s %s", label, s.DisplayName, messages.SlotReady)
	default:
		return fmt.Sprintf("%-7s -", label)
	}
}
