package banner

import (
	"fmt"

	"emojid/pkg/config"
	"emojid/pkg/state"
)

const banner = `
███████╗███╗   ███╗ ██████╗      ██╗██╗██████╗
██╔════╝████╗ ████║██╔═══██╗     ██║██║██╔══██╗
█████╗  ██╔████╔██║██║   ██║     ██║██║██║  ██║
██╔══╝  ██║╚██╔╝██║██║   ██║██   ██║██║██║  ██║
███████╗██║ ╚═╝ ██║╚██████╔╝╚█████╔╝██║██████╔╝
╚══════╝╚═╝     ╚═╝ ╚═════╝  ╚════╝ ╚═╝╚═════╝
`

// Print prints the startup banner with the effective runtime settings.
func Print(cfg *config.Config, paths state.Paths, activeCount int, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:    %s\n", cfg.Addr())
	fmt.Printf("Data dir:  %s\n", paths.DataDir)
	fmt.Printf("Records:   %s (%d active, max %d)\n", paths.Records, activeCount, cfg.Emoji.MaxRegistered)
	if cfg.Emoji.Cron != "" {
		fmt.Printf("Reconcile: cron %s\n", cfg.Emoji.Cron)
	} else {
		fmt.Printf("Reconcile: every %s\n", cfg.Emoji.CheckInterval.Duration())
	}
	fmt.Printf("Replace at capacity: %v\n", cfg.Emoji.ReplaceAtCapacity)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST   /api/emoji/upload             - stage an image for review")
	fmt.Println("POST   /api/emoji/approve/{filename} - approve a staged image")
	fmt.Println("POST   /api/emoji/match              - match an emoji by text emotion")
	fmt.Println("GET    /api/emoji/unreviewed         - list unreviewed images")
	fmt.Println("GET    /api/emoji/approved           - list approved images")
	fmt.Println("DELETE /api/emoji/{hash}             - delete a registered emoji")
	fmt.Println("\n== Production? =================================================")
	if cfg.Captioner.BaseURL == "" {
		fmt.Println("- Captioner: MISSING base_url (registration will fail)")
	} else {
		fmt.Printf("- Captioner: %s\n", cfg.Captioner.BaseURL)
	}
	if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}
}
