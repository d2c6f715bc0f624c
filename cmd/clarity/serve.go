package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clarity-bi/clarity/server"
)

func newServeCmd(a *app) *cobra.Command {
	var in inputFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API",
		Long: `Run the dashboard API.

A workbook given with --file, or data.autoload_path from config, is loaded
before the server starts listening. A load failure is logged and the server
starts empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess := a.newSession()

			if in.empty() && a.cfg.Data.AutoloadPath != "" {
				in.file = a.cfg.Data.AutoloadPath
			}
			if !in.empty() {
				if _, err := in.load(ctx, sess); err != nil {
					a.log.Warn("autoload failed, starting without data", zap.Error(err))
				}
			}

			h := a.cfg.HTTP
			srv := server.New(sess, server.Config{
				Addr:             h.Addr(),
				ReadTimeout:      h.ReadTimeout,
				WriteTimeout:     h.WriteTimeout,
				MaxUploadSize:    h.MaxUploadSize,
				CORSAllowOrigins: h.CORSAllowOrigins,
			}, a.log)
			return srv.Run(ctx)
		},
	}
	in.register(cmd)
	return cmd
}
