//go:build linux
// +build linux

package main

import (
	"embed"
	"fmt"
	"log"
	"os"

	"github.com/wailsapp/wails/v2"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// WebKit2GTK misbehaves on non-GNOME Wayland compositors.
	// Force the XWayland fallback unless the user chose a backend.
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if os.Getenv("GDK_BACKEND") == "" {
			os.Setenv("GDK_BACKEND", "x11")
			fmt.Println("Wayland detected: using XWayland (GDK_BACKEND=x11) for WebKit2GTK compatibility")
		}
	}

	// Create an instance of the app structure
	app := NewApp()

	// Frameless=false: use native window decorations
	err := wails.Run(createAppOptions(app, assets, false))
	if err != nil {
		log.Fatalf("Failed to start Confedit: %v", err)
		os.Exit(1)
	}
}
