package serve

import (
	"github.com/urfave/cli/v2"

	"github.com/alexis-pagnon/green-optimizer/internal/common"
	"github.com/alexis-pagnon/green-optimizer/internal/dashboard"
	"github.com/alexis-pagnon/green-optimizer/internal/mcpserver"
)

// DashboardFlags of the dashboard command.
func DashboardFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "listen address (default from config: 127.0.0.1:8080)"},
		&cli.BoolFlag{Name: "no-mcp", Usage: "do not mount the MCP endpoint under /mcp"},
	}
}

// DashboardAction serves the web dashboard until interrupted.
func DashboardAction(c *cli.Context) error {
	logger := common.NewLogger(c)
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	addr := cfg.Dashboard.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	rt, err := common.NewRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	dcfg := dashboard.Config{
		Analyzer:       rt.Analyzer,
		History:        rt.DB,
		RequestOptions: rt.RequestDefaults(),
		Logger:         logger,
	}
	if !c.Bool("no-mcp") {
		tools := &mcpserver.Tools{
			Analyzer:       rt.Analyzer,
			History:        rt.DB,
			RequestOptions: rt.RequestDefaults(),
			Logger:         logger,
		}
		dcfg.MCP = tools.HTTPHandler()
	}
	srv, err := dashboard.New(dcfg)
	if err != nil {
		return common.ConfigError("%v", err)
	}

	ctx, stop := common.SignalContext(c.Context)
	defer stop()
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return common.Failure("%v", err)
	}
	return nil
}

// MCPAction serves the MCP tools over stdio. Logs stay on stderr so stdout
// carries only protocol messages.
func MCPAction(c *cli.Context) error {
	logger := common.NewLogger(c)
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	rt, err := common.NewRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	tools := &mcpserver.Tools{
		Analyzer:       rt.Analyzer,
		History:        rt.DB,
		RequestOptions: rt.RequestDefaults(),
		Logger:         logger,
	}

	ctx, stop := common.SignalContext(c.Context)
	defer stop()
	if err := tools.ServeStdio(ctx); err != nil {
		return common.Failure("%v", err)
	}
	return nil
}
