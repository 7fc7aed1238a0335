package main

import (
	"encoding/json"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/airqa/inspect-cli/internal/consensus"
)

var (
	ocrAttempts int
	ocrUser     string
	ocrProvider string
)

var ocrCmd = &cobra.Command{
	Use:   "ocr <image>",
	Short: "Run multi-attempt OCR over an inspection report photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		image, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read image %s", args[0])
		}

		mimeType := mime.TypeByExtension(filepath.Ext(args[0]))
		if mimeType == "" {
			mimeType = "image/jpeg"
		}

		attempts := ocrAttempts
		if attempts == 0 {
			attempts = cfg.OCR.Attempts
		}

		if ocrProvider != "" {
			if _, err := env.Factory.SwitchTo(ctx, ocrProvider, ocrUser); err != nil {
				return err
			}
		}

		result, err := env.Orchestrator.Run(ctx, image, mimeType, consensus.Options{
			Attempts:     attempts,
			AttemptDelay: time.Duration(cfg.OCR.AttemptDelaySec * float64(time.Second)),
			PromptPoints: cfg.OCR.PromptPoints,
			Threshold:    cfg.OCR.Threshold,
			User:         ocrUser,
		})
		if err != nil {
			return err
		}

		zap.L().Info("recognition complete",
			zap.String("image", args[0]),
			zap.Int("attempts_used", result.AttemptsUsed),
			zap.Bool("has_conflicts", result.HasConflicts))

		// Result on stdout, logs on stderr.
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	ocrCmd.Flags().IntVar(&ocrAttempts, "attempts", 0, "recognition attempts per image (default from config, clamped 2-5)")
	ocrCmd.Flags().StringVar(&ocrUser, "user", "", "resolve provider config for this user scope")
	ocrCmd.Flags().StringVar(&ocrProvider, "provider", "", "use this named provider config for the run")
	rootCmd.AddCommand(ocrCmd)
}
