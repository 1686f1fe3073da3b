package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"campaignflow/internal/browser"
	"campaignflow/internal/campaign"
	"campaignflow/internal/contacts"
	"campaignflow/internal/report"
	"campaignflow/internal/sender"
	"campaignflow/internal/template"
)

type sendOptions struct {
	csvPath      string
	templatePath string
	variables    []string
	mediaPath    string
	reportPath   string
	dryRun       bool
}

var sendOpts sendOptions

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one batch from a CSV file and a message template",
	Example: `  campaignflow send --csv contacts.csv --template message.txt
  campaignflow send --csv contacts.csv --template message.txt --vars name,city --media promo.jpg
  campaignflow send --csv contacts.csv --template message.txt --dry-run`,
	RunE: runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendOpts.csvPath, "csv", "", "Contact CSV with a 'phone' column")
	f.StringVar(&sendOpts.templatePath, "template", "", "Message template file with {column} placeholders")
	f.StringSliceVar(&sendOpts.variables, "vars", nil, "Columns to substitute (default: every placeholder in the template)")
	f.StringVar(&sendOpts.mediaPath, "media", "", "File to attach to every message")
	f.StringVar(&sendOpts.reportPath, "report", "", "Append every outcome to this CSV file")
	f.BoolVar(&sendOpts.dryRun, "dry-run", false, "Render every message without opening the browser")
	_ = sendCmd.MarkFlagRequired("csv")
	_ = sendCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, _ []string) error {
	cfg, log, cleanup, err := setup("")
	if err != nil {
		return err
	}
	defer cleanup()

	log.Infof("Loading contacts from %s", sendOpts.csvPath)
	table, err := contacts.LoadCSV(sendOpts.csvPath)
	if err != nil {
		return err
	}
	log.Infof("Loaded %d contacts", table.Len())

	log.Infof("Loading message template from %s", sendOpts.templatePath)
	msg, err := template.Load(sendOpts.templatePath)
	if err != nil {
		return err
	}

	variables := sendOpts.variables
	if len(variables) == 0 {
		variables = template.Variables(msg)
	}
	if err := template.Validate(msg, variables); err != nil {
		log.Warnf("Template may not render as intended: %v", err)
	}
	if err := table.RequireColumns(append([]string{contacts.PhoneColumn}, variables...)...); err != nil {
		return err
	}

	batch := campaign.Batch{Contacts: table, Template: msg, Variables: variables, MediaPath: sendOpts.mediaPath}
	if sendOpts.dryRun {
		dryRun(log, batch)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []campaign.Option
	if sendOpts.reportPath != "" {
		opts = append(opts, campaign.WithObserver(report.NewRecorder(sendOpts.reportPath, log)))
	}
	runner := campaign.NewRunner(
		&browser.Launcher{Config: cfg.Browser, Log: log},
		sender.New(cfg.Sending, log),
		cfg.Sending,
		log,
		opts...,
	)

	summary, err := runner.Run(ctx, batch)
	if summary != nil {
		printSummary(log, summary)
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d messages failed", summary.Failed)
	}
	return nil
}

func dryRun(log logrus.FieldLogger, batch campaign.Batch) {
	valid := 0
	for i, row := range batch.Contacts.Rows {
		phone, ok := contacts.NormalizePhone(row[contacts.PhoneColumn])
		if !ok {
			log.Warnf("[DRY RUN] Row %d: would skip invalid phone number %q", i+1, phone)
			continue
		}
		valid++
		message := template.Render(batch.Template, row, batch.Variables)
		log.Infof("[DRY RUN] Would send message to %s (%s):\n%s",
			contacts.ResolveDisplayName(row), phone, message)
	}
	if batch.MediaPath != "" {
		if _, err := os.Stat(batch.MediaPath); err != nil {
			log.Warnf("[DRY RUN] Media file %s is not readable, messages would go out as text: %v", batch.MediaPath, err)
		} else {
			log.Infof("[DRY RUN] Would attach %s as %s", batch.MediaPath, sender.MediaKind(batch.MediaPath))
		}
	}
	log.Infof("[DRY RUN] %d of %d contacts would receive a message", valid, batch.Contacts.Len())
}

func printSummary(log logrus.FieldLogger, s *campaign.Summary) {
	log.Info("=== Batch Summary ===")
	log.Infof("Batch: %s", s.BatchID)
	log.Infof("Total contacts: %d", len(s.Outcomes))
	log.Infof("Sent: %d", s.Sent)
	log.Infof("Skipped (invalid phone): %d", s.Skipped)
	log.Infof("Failed: %d", s.Failed)
	log.Infof("Duration: %v", s.Duration().Round(time.Second))

	if s.Failed == 0 {
		return
	}
	log.Warn("Failed contacts:")
	for _, o := range s.Outcomes {
		if o.Status == campaign.StatusFailed {
			log.Warnf("  - %s (%s): %s", o.Name, o.Phone, o.Error)
		}
	}
}
