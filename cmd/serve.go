package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/logging"
	"github.com/rwelens/rwelens-cli/internal/server"
)

var (
	serveAddr      string
	serveStudyName string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local RWE Lens dashboard server",
	Example: `  rwelens serve
  rwelens serve --addr :9000 -s mounjaro`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := serveAddr
		logLevel, logFormat, dataDir := "info", "text", ""
		historyLimit := 0
		if cfg != nil {
			if addr == "" {
				addr = cfg.ServerAddr
			}
			logLevel = cfg.LogLevel
			logFormat = cfg.LogFormat
			dataDir = cfg.DataDir
			historyLimit = cfg.HistoryLimit
		}
		logger := logging.New(logLevel, logFormat)

		sc := server.Config{
			Addr:         addr,
			DataDir:      dataDir,
			Logger:       logger,
			HistoryLimit: historyLimit,
		}

		if catalog := openCatalog(); catalog != nil {
			defer catalog.Close()
			sc.Catalog = catalog
		}

		if chain, err := buildChain(cfg, "", selectModel(nil, cfg, "")); err != nil {
			fmt.Fprintf(os.Stderr, "⚠ Warning: chat disabled: %v\n", err)
		} else {
			sc.Engine = chain
		}

		store, cleanup, err := buildHistoryStore(cmd.Context(), "dashboard")
		if err != nil {
			return err
		}
		defer cleanup()
		sc.History = store

		srv := server.New(sc)

		// Preload study datasets so the dashboard starts populated.
		if serveStudyName != "" {
			s, err := loadStudyByName(serveStudyName)
			if err != nil {
				return err
			}
			for id := range s.Datasets {
				ds, err := s.Dataset(id)
				if err != nil {
					return err
				}
				srv.AddDataset(ds)
			}
			logger.Info("study loaded", "study", s.Name, "datasets", len(s.Datasets))
		}

		fmt.Printf("⚙ RWE Lens dashboard listening on %s\n", addr)
		return srv.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8787)")
	serveCmd.Flags().StringVarP(&serveStudyName, "study", "s", "", "preload this study's datasets")
}
