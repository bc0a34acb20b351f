// Command admintoken mints a bearer token for the /admin API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"cases-miniapp-backend/internal/services"
)

func main() {
	subject := flag.String("sub", "operator", "token subject, recorded in admin grant logs")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	jwtService := services.NewJWTService(os.Getenv("ADMIN_JWT_SECRET"))
	token, err := jwtService.GenerateToken(*subject, *ttl)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	fmt.Println(token)
}
