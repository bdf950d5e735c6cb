package main

import (
	"fmt"
	"os"

	"github.com/routecodex/routecodex/internal/config"
	"github.com/routecodex/routecodex/internal/daemon"
)

func cmdStart(args []string) {
	foreground := false
	for _, a := range args {
		if a == "--foreground" || a == "-f" {
			foreground = true
		}
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := daemon.Run(cfg, foreground); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdStop() {
	if err := daemon.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error stopping gateway: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("routecodex stopped")
}

func cmdStatus() {
	if err := daemon.Status(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func cmdSetup(args []string) {
	nonInteractive := false
	for _, a := range args {
		if a == "--non-interactive" {
			nonInteractive = true
		}
	}

	if nonInteractive {
		cmdInitConfig()
		fmt.Println("Setup complete. Run 'routecodex start' to begin.")
		return
	}

	fmt.Println("RouteCodex Setup Wizard")
	fmt.Println("=======================")
	fmt.Println()

	cmdInitConfig()

	fmt.Println("\nTo add provider API keys, run: routecodex keys set <provider>")
	fmt.Println("Supported providers: openai-chat, openai-responses, anthropic, glm, lmstudio, deepseek")
	fmt.Println("(qwen, iflow, and gemini authenticate via OAuth device code on first request)")
	fmt.Println()
	fmt.Println("Setup complete. Run 'routecodex start' to begin.")
}

func cmdInitConfig() {
	if err := config.InitConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "error generating config: %v\n", err)
		os.Exit(1)
	}
}

func cmdInstallService() {
	if err := daemon.InstallService(); err != nil {
		fmt.Fprintf(os.Stderr, "error installing service: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Service installed successfully")
}
