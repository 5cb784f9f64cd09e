package banner

import (
	"fmt"

	"chatsync/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗███████╗██╗   ██╗███╗   ██╗ ██████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
██║     ███████║███████║   ██║   ███████╗ ╚████╔╝ ██╔██╗ ██║██║
██║     ██╔══██║██╔══██║   ██║   ╚════██║  ╚██╔╝  ██║╚██╗██║██║
╚██████╗██║  ██║██║  ██║   ██║   ███████║   ██║   ██║ ╚████║╚██████╗
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝
`

// Print writes the startup banner with the effective runtime settings.
func Print(cfg *config.Config, addr, cachePath, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:      %s (%s)\n", addr, cfg.Server.Engine)
	if cachePath != "" {
		fmt.Printf("Cache:       %s\n", cachePath)
	} else {
		fmt.Println("Cache:       disabled")
	}
	if cfg.Transport.URL != "" {
		fmt.Printf("Transport:   %s\n", cfg.Transport.URL)
	} else {
		fmt.Println("Transport:   none (REST injection only)")
	}
	fmt.Printf("Retention:   %d messages/thread\n", cfg.Sync.MaxMessages)
	if cfg.Janitor.Enabled {
		fmt.Printf("Janitor:     enabled (cron=%s)\n", cfg.Janitor.Cron)
	} else {
		fmt.Println("Janitor:     disabled")
	}
	if version != "" {
		fmt.Printf("Version:     %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config from: %s\n", source)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST   /v1/events                    - Inject a transport event")
	fmt.Println("GET    /v1/threads/{id}/messages     - Rendered view (?raw=1 for store contents)")
	fmt.Println("POST   /v1/threads/{id}/send         - Optimistic send")
	fmt.Println("POST   /v1/threads/resolve           - Derive the DM conversation key for a user pair")
	fmt.Println("GET    /v1/previews                  - Inbox previews")
	fmt.Println("POST   /v1/filters                   - Add a standing author filter")
	fmt.Println("DELETE /v1/filters                   - Remove a filter (seeds a suppression window)")
	fmt.Println("POST   /v1/windows                   - Register an ad-hoc suppression window")
	fmt.Println("GET    /healthz | /metrics")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/events' -d '{\"type\":\"message:new\",\"threadId\":\"t1\",\"messageId\":\"m1\",\"username\":\"ana\",\"timestamp\":1700000000000,\"text\":\"hi\"}'\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/threads/t1/messages?limit=50'\n", addr)
	fmt.Println()
}
