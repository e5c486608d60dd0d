package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/croppulse/internal/imaging"
	"github.com/Lllllllleong/croppulse/internal/inference"
	"github.com/Lllllllleong/croppulse/internal/store"
	"github.com/Lllllllleong/croppulse/internal/triage"
)

var (
	plantType   string
	fromCamera  bool
	dryRun      bool
	dispatchTo  string
	recordedURI string
	noCompress  bool
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <photo>",
	Short: "Classify a plant photo and run the follow-up questionnaire",
	Long: `Classify a plant photo, answer the follow-up questions for the predicted
disease with y/n, save the prediction and answers, and print treatments.

With --dry-run nothing is written. With --dispatch the diagnosis is also
rendered as a chat prompt or community post.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiagnose,
}

func init() {
	diagnoseCmd.Flags().StringVarP(&plantType, "plant", "p", inference.DefaultPlantType, "Plant type: "+strings.Join(inference.PlantTypes, ", "))
	diagnoseCmd.Flags().BoolVar(&fromCamera, "camera", false, "Treat the photo as a camera capture (quality 70)")
	diagnoseCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Do not save the prediction")
	diagnoseCmd.Flags().StringVar(&dispatchTo, "dispatch", "", "Also render the diagnosis for chat or community")
	diagnoseCmd.Flags().StringVar(&recordedURI, "image-uri", "", "gs:// URI to record with the prediction")
	diagnoseCmd.Flags().BoolVar(&noCompress, "no-compress", false, "Skip compression of large photos")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	plant, err := triage.PlantTypeOrDefault(plantType)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	sess, err := session()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
	}
	client, err := firestoreClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	st := store.New(client)

	source := imaging.Gallery
	if fromCamera {
		source = imaging.Camera
	}
	wf := &triage.Workflow{
		Session:           sess,
		PlantType:         plant,
		Acquirer:          &imaging.Acquirer{Compress: !noCompress, Logger: slog.Default()},
		Classifier:        inference.NewClient(inferenceURL),
		QuestionResolver:  &triage.QuestionResolver{Store: st},
		TreatmentResolver: &triage.TreatmentResolver{Store: st},
		Writer:            triage.NewWriter(st),
	}
	if _, err := wf.Acquire(imaging.PickResult{Source: source, Name: filepath.Base(args[0]), Data: data}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p, err := wf.Predict(ctx)
	if p == nil {
		return err
	}
	fmt.Fprintf(out, "Prediction: %s (%s%% confidence)\n", p.Disease, triage.FormatConfidence(p.Confidence))
	if err != nil {
		return fmt.Errorf("follow-up questions are unavailable, nothing was saved: %w", err)
	}

	fmt.Fprintln(out, "\nFollow-up questions:")
	if err := askAll(cmd.InOrStdin(), out, wf.Answers()); err != nil {
		return err
	}

	var treatments []string
	if dryRun {
		treatments = wf.TreatmentResolver.ResolveOrUnavailable(ctx, p.Disease, plant)
	} else {
		treatments, err = wf.SaveAndFetchTreatments(ctx, recordedURI)
		if err != nil {
			return err
		}
		saved := wf.Saved()
		fmt.Fprintf(out, "\nSaved prediction %s (follow-up %s)\n", saved.PredictionID, saved.FollowUpID)
	}

	fmt.Fprintln(out, "\nTreatments:")
	for _, t := range treatments {
		fmt.Fprintf(out, "  - %s\n", t)
	}

	if dispatchTo != "" {
		h, err := wf.Dispatch(triage.Target(dispatchTo))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n--- %s ---\n%s\n", h.Target, h.Content)
	}
	return nil
}

// askAll prompts for every question in turn until it gets y or n.
func askAll(in io.Reader, out io.Writer, answers *triage.Answers) error {
	scanner := bufio.NewScanner(in)
	for i, q := range answers.Questions() {
		for {
			fmt.Fprintf(out, "%d. %s [y/n]: ", i+1, q)
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("failed to read answer: %w", err)
				}
				return errors.New("input ended before every question was answered")
			}
			var err error
			switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
			case "y", "yes":
				err = answers.Yes(q)
			case "n", "no":
				err = answers.No(q)
			default:
				fmt.Fprintln(out, "Please answer y or n.")
				continue
			}
			if err != nil {
				return err
			}
			break
		}
	}
	return nil
}
