package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-case-tracker/internal/messages"
	"go-case-tracker/internal/modal"
)

var deleteForce bool

const confirmYes = "yes"

var deleteCmd = &cobra.Command{
	Use:   "delete [CASE_ID]",
	Short: "Delete a case",
	Long: `Deletes a case from the store after a confirmation prompt.

Examples:
  case-tracker delete 7
  case-tracker delete 7 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid case id %q", args[0])
	}

	a := openApp()
	defer a.Close()

	target, err := a.client.GetCase(cmd.Context(), id)
	if err != nil {
		return err
	}

	ctrl := modal.NewController(target, modal.Deps{Deleter: a.service})
	if err := ctrl.OpenConfirm(); err != nil {
		return err
	}
	if !deleteForce && !confirmDeletion(cmd.InOrStdin(), cmd.OutOrStdout(), target.Name) {
		ctrl.Close()
		fmt.Fprintln(cmd.OutOrStdout(), messages.Cancelled)
		return nil
	}
	if deleteForce {
		log.Info("Skipping confirmation due to --force flag.")
	}

	if err := ctrl.Confirm(cmd.Context()); err != nil {
		if msg := ctrl.Error(); msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), messages.CaseDeletedFmt+"\n", id)
	return nil
}

func confirmDeletion(in io.Reader, out io.Writer, name string) bool {
	fmt.Fprintf(out, messages.ConfirmDeleteYN, name)

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		log.WithError(err).Debug("Error reading input")
		return false
	}

	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == confirmYes
}
