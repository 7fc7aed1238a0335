package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/airqa/inspect-cli/internal/consensus"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := buildMux(env)
		port := resolvePort(servePort, cfg.Server.Port)

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

func buildMux(env *appEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"providers": env.Monitor.Snapshot(),
		})
	})

	mux.HandleFunc("GET /providers", func(w http.ResponseWriter, r *http.Request) {
		configs, err := env.Store.ListActiveConfigs(r.Context())
		if err != nil {
			http.Error(w, `{"error":"list configs failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(configs)
	})

	mux.HandleFunc("GET /points/suggest", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		suggestions, err := env.Points.Suggest(r.Context(), r.URL.Query()["exclude"], limit)
		if err != nil {
			http.Error(w, `{"error":"suggest failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(suggestions)
	})

	mux.HandleFunc("POST /ocr", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ImageBase64 string `json:"image_base64"`
			MIMEType    string `json:"mime_type"`
			Attempts    int    `json:"attempts"`
			User        string `json:"user"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil || len(image) == 0 {
			http.Error(w, `{"error":"image_base64 is required"}`, http.StatusBadRequest)
			return
		}
		if req.MIMEType == "" {
			req.MIMEType = "image/jpeg"
		}
		attempts := req.Attempts
		if attempts == 0 {
			attempts = cfg.OCR.Attempts
		}

		result, err := env.Orchestrator.Run(r.Context(), image, req.MIMEType, consensus.Options{
			Attempts:     attempts,
			AttemptDelay: time.Duration(cfg.OCR.AttemptDelaySec * float64(time.Second)),
			PromptPoints: cfg.OCR.PromptPoints,
			Threshold:    cfg.OCR.Threshold,
			User:         req.User,
		})
		if err != nil {
			zap.L().Error("recognition request failed", zap.Error(err))
			http.Error(w, `{"error":"recognition failed"}`, http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})

	return mux
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
