package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sk-go/agentflow/internal/cli"
	internal_http "github.com/sk-go/agentflow/internal/http"
	"github.com/sk-go/agentflow/internal/log"
	internal_storage "github.com/sk-go/agentflow/internal/storage"
	"github.com/sk-go/agentflow/pkg/cache"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "agentflow"}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AgentFlow HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			log.GetLogger().Debugf("No .env file found: %v", err)
		}
		port, _ := cmd.Flags().GetString("port")
		dbConnStr, _ := cmd.Flags().GetString("db")

		var store cache.Cache
		if dbConnStr != "" {
			pg, err := internal_storage.InitCache(dbConnStr)
			if err != nil {
				log.GetLogger().Errorf("Failed to initialize store: %v", err)
				os.Exit(1)
			}
			defer pg.Close()
			store = pg
		} else {
			store = cache.NewMemoryCache()
		}
		if err := internal_http.StartServer(port, store); err != nil {
			log.GetLogger().Errorf("Server failed: %v", err)
			os.Exit(1)
		}
	},
}

func main() {
	serveCmd.Flags().String("port", "8080", "Port to listen on")
	rootCmd.PersistentFlags().String("db", "", "Postgres connection string for the snapshot store")
	rootCmd.AddCommand(serveCmd)
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
