package main

import "os"

func main() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
