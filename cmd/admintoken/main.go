package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/crsmanager/crs-backend/pkg/auth"
	"github.com/crsmanager/crs-backend/pkg/config"
	"github.com/crsmanager/crs-backend/pkg/logger"
)

// admintoken prints a signed token for the /api/admin routes.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "admintoken", Output: os.Stderr})

	_ = godotenv.Load()

	subject := flag.String("subject", "", "who the token is issued to (required)")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to CRS_JWT_ADMIN_TOKEN_TTL")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "missing -subject")
		os.Exit(1)
	}

	cfg, err := config.LoadJWT()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	lifetime := cfg.AdminTokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.MintAdminToken(cfg, time.Now(), *subject, lifetime)
	if err != nil {
		logg.Error(ctx, "failed to mint admin token", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{"subject": *subject, "ttl": lifetime.String()})
	logg.Info(ctx, "admin token minted")
	fmt.Println(token)
}
