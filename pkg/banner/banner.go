package banner

import (
	"fmt"

	"github.com/stewones/borda-sub001/pkg/config"
)

const banner = `
██████╗  ██████╗ ██████╗ ██████╗  █████╗
██╔══██╗██╔═══██╗██╔══██╗██╔══██╗██╔══██╗
██████╔╝██║   ██║██████╔╝██║  ██║███████║
██╔══██╗██║   ██║██╔══██╗██║  ██║██╔══██║
██████╔╝╚██████╔╝██║  ██║██████╔╝██║  ██║
╚═════╝  ╚═════╝ ╚═╝  ╚═╝╚═════╝ ╚═╝  ╚═╝
`

// PrintWithEff prints the startup banner using an effective config so the
// operator can spot a misconfigured deployment before the first request.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)
	if eff.Config != nil {
		fmt.Printf("Mongo:    %s\n", eff.Config.Mongo.Database)
		fmt.Printf("Collections: %d\n", len(eff.Config.Collections))
	}

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/collections/post' -d '{\"title\": \"hello\"}'")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/query/post' -d '{\"method\": \"find\", \"filter\": {}}'")

	fmt.Println("\n== Production? ================================================")
	be, fe := 0, 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if eff.Config != nil && eff.Config.Security.JWTSecret != "" {
		fmt.Println("- JWT: configured")
	} else {
		fmt.Println("- JWT: unconfigured (session tokens disabled)")
	}
	if eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}
	if eff.Config != nil && eff.Config.Retention.Enabled {
		fmt.Printf("- Retention: enabled (cron=%s period=%s)\n", eff.Config.Retention.Cron, eff.Config.Retention.Period)
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs =======================================================")
}
