// Command devtoken prints a signed identity token for local testing.
//
//	JWT_SECRET=dev go run ./cmd/devtoken -user alice -ttl 2h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/DukeRupert/dialpool/internal/identity"
)

func main() {
	_ = godotenv.Load()

	userID := flag.String("user", "", "user ID to put in the token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	token, err := identity.NewIssuer(secret, os.Getenv("JWT_ISSUER")).Issue(*userID, time.Now(), *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
