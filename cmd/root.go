package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	var root = &cobra.Command{Use: "apilog", SilenceUsage: true}

	root.AddCommand(serveCMD(), reportCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
