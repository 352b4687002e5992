package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/dbkit/internal/querybuilder"
	"github.com/koustreak/dbkit/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve schema metadata and condition rendering over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			cfg := s.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}
			srv := server.New(s.schema, querybuilder.New(s.db.Dialect()), s.log)
			return srv.ListenAndServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config file")
	return cmd
}
