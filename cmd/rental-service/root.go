package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rental-service",
	Short: "Power bank rental service",
	Long: `rental-service tracks power bank inventory across physical stations,
brokers rental transactions and meters active rentals until return.

Configuration comes from a YAML file named by CONFIG_FILE plus
RENTAL_* environment overrides.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
