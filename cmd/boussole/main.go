package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "boussole",
	Short: "Boussole — OKR tracker",
	Long:  "Boussole tracks Objectives and Key Results across an organization hierarchy of departments and teams, with role-based permissions, progress analytics, and session-based authentication.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/boussole.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
