package commands

import (
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/balkashynov/dtr/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the supervisor API over the shared backend",
	Args:  cobra.NoArgs,
	Run: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		r, err := e.openRemote()
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = e.cfg.Server.Addr
		}
		if e.cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		router := api.NewRouter(api.NewHandler(r, e.log), e.log)
		return api.Serve(ctx, addr, router, e.log)
	}),
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default server.addr)")
}
