package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/bulk"
	"github.com/masivos/admin-gateway/internal/export"
)

var (
	exportOut         string
	exportSink        bool
	deleteConcurrency int
	sendSubject       string
	sendHTML          string
	sendFrom          string
)

// exportListCmd drains a contact list into a CSV file
var exportListCmd = &cobra.Command{
	Use:   "export-list <list-id>",
	Short: "Export every contact of a list as CSV",
	Long: `Fetches every page of a contact list and writes it as CSV.

Without flags the CSV goes to stdout. --sink stores it in the export sink
from the configuration (a local directory or an S3 bucket).`,
	Args: cobra.ExactArgs(1),
	RunE: runExportList,
}

// addToListCmd adds contacts to a list one by one
var addToListCmd = &cobra.Command{
	Use:   "add-to-list <list-id> <contact-id>...",
	Short: "Add contacts to a list",
	Long: `Adds contacts to a list in order and stops at the first failure.
The contacts added before the failure are reported.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAddToList,
}

// deleteContactsCmd deletes contacts in parallel
var deleteContactsCmd = &cobra.Command{
	Use:   "delete-contacts <contact-id>...",
	Short: "Delete contacts",
	Long: `Deletes contacts in parallel. The first failure stops the deletes not
yet started; contacts already deleted are reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDeleteContacts,
}

// sendToListsCmd emails every contact of some lists
var sendToListsCmd = &cobra.Command{
	Use:   "send-to-lists <list-id>...",
	Short: "Send one email to every contact of the given lists",
	Long: `Reads every page of each list and sends a single bulk email to all of
their contacts. Lists that cannot be read are skipped and reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSendToLists,
}

func init() {
	exportListCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write the CSV to this file")
	exportListCmd.Flags().BoolVar(&exportSink, "sink", false, "Store the CSV in the configured export sink")

	deleteContactsCmd.Flags().IntVar(&deleteConcurrency, "concurrency", 8, "Parallel deletes")

	sendToListsCmd.Flags().StringVar(&sendSubject, "subject", "", "Email subject")
	sendToListsCmd.Flags().StringVar(&sendHTML, "html", "", "HTML body file")
	sendToListsCmd.Flags().StringVar(&sendFrom, "from", "", "Sender address")
	sendToListsCmd.MarkFlagRequired("subject")
	sendToListsCmd.MarkFlagRequired("html")
}

func runExportList(cmd *cobra.Command, args []string) error {
	ctx, cancel, cfg, client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	listID := args[0]

	if exportSink {
		sink, err := export.NewSink(ctx, cfg.Export)
		if err != nil {
			return err
		}
		res, err := export.NewExporter(client, sink).Export(ctx, listID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d contacts to %s\n", res.Contacts, res.Location)
		return nil
	}

	contacts, err := client.ContactsByList(ctx, listID, nil)
	if err != nil {
		return fmt.Errorf("fetching list %s: %w", listID, err)
	}

	out := cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := export.WriteCSV(out, contacts); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d contacts\n", len(contacts))
	return nil
}

func runAddToList(cmd *cobra.Command, args []string) error {
	ctx, cancel, _, client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	res, err := bulk.NewService(client, nil).AddContactsToList(ctx, args[0], args[1:])
	if res != nil {
		if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
			return perr
		}
	}
	return err
}

func runDeleteContacts(cmd *cobra.Command, args []string) error {
	ctx, cancel, _, client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	svc := bulk.NewService(client, nil, bulk.WithConcurrency(deleteConcurrency))
	res, err := svc.DeleteContacts(ctx, args)
	if res != nil {
		if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
			return perr
		}
	}
	return err
}

func runSendToLists(cmd *cobra.Command, args []string) error {
	html, err := os.ReadFile(sendHTML)
	if err != nil {
		return err
	}
	ctx, cancel, _, client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	req := bulk.ListSendRequest{
		Subject:     sendSubject,
		HTMLContent: string(html),
		From:        sendFrom,
	}
	for _, id := range args {
		req.ListIDs = append(req.ListIDs, apiclient.ID(id))
	}
	res, err := bulk.SendToLists(ctx, client, req)
	if res != nil {
		if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
			return perr
		}
	}
	return err
}
