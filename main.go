package main

import (
	"log"
	"net"
	"os"
	"strings"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/pocketbase/pocketbase/tools/hook"
	"go.uber.org/zap"

	"github.com/geoffjay/garage/internal/commands"
	"github.com/geoffjay/garage/internal/config"
	"github.com/geoffjay/garage/internal/logging"
	_ "github.com/geoffjay/garage/migrations"
)

func main() {
	cfg, err := config.Load(os.Getenv("GARAGE_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	app := pocketbase.New()

	// Collections are defined in code; automigrate only while developing
	// with `go run`.
	isGoRun := strings.HasPrefix(os.Args[0], os.TempDir())
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		TemplateLang: migratecmd.TemplateLangGo,
		Automigrate:  isGoRun,
	})

	app.RootCmd.AddCommand(commands.NewLegacyCommand(app, cfg, logger))

	// IP allowlist middleware
	app.OnServe().Bind(&hook.Handler[*core.ServeEvent]{
		Func: func(e *core.ServeEvent) error {
			e.Router.BindFunc(func(re *core.RequestEvent) error {
				clientIP := re.RealIP()
				if !isAllowedIP(clientIP, cfg.AllowedHomeIP, logger) {
					logger.Warn("access denied",
						zap.String("ip", clientIP),
						zap.String("path", re.Request.URL.Path),
					)
					return re.ForbiddenError("Access denied from your IP address", nil)
				}
				return re.Next()
			})
			return e.Next()
		},
		Priority: 1, // Execute early in the chain
	})

	if err := app.Start(); err != nil {
		logger.Fatal("pocketbase exited", zap.Error(err))
	}
}

// isAllowedIP reports whether clientIP may reach the API. Private network
// traffic is always allowed; otherwise clientIP must equal allowedHomeIP or
// fall inside it when it is a CIDR. An empty allowedHomeIP allows only the
// private network.
func isAllowedIP(clientIP, allowedHomeIP string, logger *zap.Logger) bool {
	if isPrivateNetwork(clientIP) {
		return true
	}

	if allowedHomeIP == "" {
		return false
	}

	if strings.Contains(allowedHomeIP, "/") {
		_, allowedNet, err := net.ParseCIDR(allowedHomeIP)
		if err != nil {
			logger.Error("invalid allowed_home_ip CIDR", zap.String("value", allowedHomeIP), zap.Error(err))
			return false
		}
		ip := net.ParseIP(clientIP)
		return ip != nil && allowedNet.Contains(ip)
	}

	return clientIP == allowedHomeIP
}

// Fly.io 6PN uses fdaa::/48.
var privateRanges = mustParseCIDRs(
	"fdaa::/48",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7", // IPv6 ULA
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

func isPrivateNetwork(ip string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, privNet := range privateRanges {
		if privNet.Contains(parsedIP) {
			return true
		}
	}
	return false
}
