package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/formweave/formweave/core/config"
	"github.com/formweave/formweave/core/tracking"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail commands",
	Long:  `Query and summarize the archived change history of a document.`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query <document-id>",
	Short: "List archived changes for a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditQuery,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archived change counts per document",
	RunE:  runAuditStats,
}

var auditLimit int

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd)
	auditCmd.AddCommand(auditStatsCmd)

	auditQueryCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries to show")
}

func openArchive() (*tracking.Archive, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return tracking.NewArchive(cfg.Tracking.ArchivePath)
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	archive, err := openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	records, err := archive.QueryChanges(args[0], auditLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no archived changes")
		return nil
	}

	for _, record := range records {
		fmt.Printf("%s  %-9s %-8s %-12s %s\n",
			record.Timestamp.Format("2006-01-02 15:04:05"),
			record.Category,
			record.Impact,
			record.UserID,
			record.Description,
		)
	}
	return nil
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	archive, err := openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	counts, err := archive.CountByDocument()
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Println("archive is empty")
		return nil
	}

	for documentID, count := range counts {
		fmt.Printf("%-36s %d\n", documentID, count)
	}
	return nil
}
