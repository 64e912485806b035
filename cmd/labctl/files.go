package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/virtual-lab/internal/files"
	"github.com/shehryarbajwa/virtual-lab/pkg/models"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Browse files saved from the notebook",
}

// files ls
var filesListCmd = &cobra.Command{
	Use:     "ls",
	Short:   "List saved files and folders",
	Aliases: []string{"list"},
	Args:    cobra.NoArgs,
	RunE:    runFilesList,
}

// files rm
var filesRemoveCmd = &cobra.Command{
	Use:     "rm <path>",
	Short:   "Delete a saved file",
	Aliases: []string{"delete"},
	Args:    cobra.ExactArgs(1),
	RunE:    runFilesRemove,
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(filesListCmd, filesRemoveCmd)
}

func filesClient() (files.Lister, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Control.FilesBaseURL == "" {
		return files.Unavailable{}, nil
	}
	return files.NewClient(gatewayClient(cfg, cfg.Control.FilesBaseURL)), nil
}

func runFilesList(cmd *cobra.Command, args []string) error {
	client, err := filesClient()
	if err != nil {
		return err
	}

	listing, err := client.List(cmd.Context())
	if err != nil {
		return err
	}

	return printListing(cmd.OutOrStdout(), listing)
}

func runFilesRemove(cmd *cobra.Command, args []string) error {
	client, err := filesClient()
	if err != nil {
		return err
	}

	if err := client.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func printListing(out io.Writer, listing models.FileListing) error {
	if len(listing.Files) == 0 && len(listing.Folders) == 0 {
		_, err := fmt.Fprintln(out, "No files found.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
	for _, folder := range listing.Folders {
		fmt.Fprintf(tw, "%s/\t-\t-\n", folder.Name)
	}
	for _, f := range listing.Files {
		modified := "-"
		if !f.LastModified.IsZero() {
			modified = f.LastModified.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, models.FormatSize(f.Size), modified)
	}
	return tw.Flush()
}
