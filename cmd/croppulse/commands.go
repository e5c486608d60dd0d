package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/croppulse/internal/fertilizer"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/history"
	"github.com/Lllllllleong/croppulse/internal/report"
	"github.com/Lllllllleong/croppulse/internal/store"
	"github.com/Lllllllleong/croppulse/internal/triage"
)

var (
	disease    string
	reportPath string
)

var treatmentsCmd = &cobra.Command{
	Use:   "treatments",
	Short: "Look up treatments for a disease",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plant, err := triage.PlantTypeOrDefault(plantType)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		client, err := firestoreClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		r := &triage.TreatmentResolver{Store: store.New(client)}
		t, err := r.Resolve(ctx, disease, plant)
		if err != nil {
			return err
		}
		for _, line := range t {
			fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", line)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved predictions with their follow-up answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		sess, err := session()
		if err != nil {
			return err
		}
		client, err := firestoreClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		st := store.New(client)
		svc := &history.Service{Store: st, Treatments: &triage.TreatmentResolver{Store: st}}
		entries, err := svc.List(ctx, sess)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDATE\tPLANT\tDISEASE\tCONFIDENCE\tANSWERS")
		for _, e := range entries {
			answers := "-"
			if e.FollowUp != nil {
				answers = strconv.Itoa(len(e.FollowUp.Answers))
			}
			p := e.Prediction
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s%%\t%s\n", p.ID, p.CapturedAt, p.PlantType, p.Disease, triage.FormatConfidence(p.Confidence), answers)
		}
		return tw.Flush()
	},
}

var fertilizerCmd = &cobra.Command{
	Use:       "fertilizer <crop> <area-m2>",
	Short:     "Calculate fertilizer amounts for a crop area",
	Args:      cobra.ExactArgs(2),
	ValidArgs: fertilizer.Crops(),
	RunE: func(cmd *cobra.Command, args []string) error {
		area, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fertilizer.ErrBadArea
		}
		res, err := fertilizer.Calculate(args[0], area)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.String())
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <prediction-id>",
	Short: "Render the PDF report of a saved prediction to a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		sess, err := session()
		if err != nil {
			return err
		}
		client, err := firestoreClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		st := store.New(client)
		svc := &history.Service{Store: st, Treatments: &triage.TreatmentResolver{Store: st}}
		d, err := svc.Detail(ctx, sess, args[0])
		if err != nil {
			return err
		}

		var photo []byte
		if d.Prediction.ImageURI != "" {
			storageClient, err := gcp.NewStorageClient(ctx)
			if err != nil {
				return err
			}
			defer storageClient.Close()
			photo, err = (&gcp.Reader{Client: storageClient}).Read(ctx, d.Prediction.ImageURI)
			if err != nil {
				return err
			}
		}
		pdf, err := report.Render(photo, report.Content{
			Bundle:     triage.BundleFromRecord(d.Prediction, d.FollowUp),
			Treatments: d.Treatments,
			CapturedAt: d.Prediction.CapturedAt,
		})
		if err != nil {
			return err
		}
		if err := os.WriteFile(reportPath, pdf, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", reportPath, len(pdf))
		return nil
	},
}

func init() {
	treatmentsCmd.Flags().StringVar(&disease, "disease", "", "Disease name as predicted")
	treatmentsCmd.Flags().StringVarP(&plantType, "plant", "p", triage.DefaultPlantType, "Plant type")
	_ = treatmentsCmd.MarkFlagRequired("disease")

	reportCmd.Flags().StringVarP(&reportPath, "output", "o", "report.pdf", "Output PDF path")
}
