// Command admintoken issues an admin console access token signed with the
// configured JWT secret.
package main

import (
	"flag"
	"fmt"
	"log"

	"membership-backend/internal/config"
	"membership-backend/internal/domain"
	"membership-backend/internal/security"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	id := flag.String("id", "", "Admin identifier recorded on decisions")
	name := flag.String("name", "", "Admin display name")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	admin := domain.AdminIdentity{ID: *id, Name: *name}
	token, err := security.NewTokenManager(cfg.JWT.Secret).GenerateAdminToken(admin, cfg.AdminTokenExpiry())
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}
