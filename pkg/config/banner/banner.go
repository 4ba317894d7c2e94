package banner

import (
	"fmt"

	"chatzalo/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗███████╗ █████╗ ██╗      ██████╗ 
██╔════╝██║  ██║██╔══██╗╚══██╔══╝╚══███╔╝██╔══██╗██║     ██╔═══██╗
██║     ███████║███████║   ██║     ███╔╝ ███████║██║     ██║   ██║
██║     ██╔══██║██╔══██║   ██║    ███╔╝  ██╔══██║██║     ██║   ██║
╚██████╗██║  ██║██║  ██║   ██║   ███████╗██║  ██║███████╗╚██████╔╝
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝╚═╝  ╚═╝╚══════╝ ╚═════╝ 
`

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides richer context (config, addr, dbpath, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	rtAddr := ""
	if eff.Config != nil {
		rtAddr = eff.Config.RealtimeAddr() + eff.Config.Realtime.Path
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("REST:     %s\n", addr)
	fmt.Printf("Realtime: %s\n", rtAddr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	if eff.Config == nil {
		return
	}
	cfg := eff.Config

	fmt.Println("\n== Production? =================================================")
	if len(cfg.Security.JWTSecret) >= 32 {
		fmt.Println("- JWT secret: OK")
	} else {
		fmt.Println("- JWT secret: SHORT (use at least 32 bytes in production)")
	}
	if n := len(cfg.Server.CORS.AllowedOrigins); n > 0 {
		fmt.Printf("- CORS origins: %d\n", n)
	} else {
		fmt.Println("- CORS origins: none (browsers on other origins are rejected)")
	}
	fmt.Printf("- Recall window: %s\n", cfg.Messages.RecallWindow.Duration())
	fmt.Printf("- Blob max size: %s\n", cfg.Blobs.MaxSize)
	if cfg.Telemetry.Enabled {
		fmt.Printf("- Slow-op log: enabled (threshold=%s)\n", cfg.Telemetry.SlowThreshold.Duration())
	}
	if cfg.Retention.Enabled {
		fmt.Printf("- Group retention: enabled (cron=%s period=%s)\n", cfg.Retention.Cron, cfg.Retention.Period)
	} else {
		fmt.Println("- Group retention: disabled")
	}
}
