// Command devtoken prints a signed access token for local testing.
//
//	go run ./cmd/devtoken -user 1 -role CUSTOMER
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()
	user := flag.Uint64("user", 1, "user id placed in the sub claim")
	role := flag.String("role", middleware.RoleCustomer, "CUSTOMER, STAFF or ADMIN")
	ttl := flag.Duration("ttl", 0, "token lifetime (default ACCESS_TOKEN_TTL_MIN or 60m)")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	r := strings.ToUpper(*role)
	switch r {
	case middleware.RoleCustomer, middleware.RoleStaff, middleware.RoleAdmin:
	default:
		log.Fatalf("unknown role %q", *role)
	}
	if *ttl <= 0 {
		*ttl = time.Hour
		if v, err := time.ParseDuration(os.Getenv("ACCESS_TOKEN_TTL_MIN") + "m"); err == nil && v > 0 {
			*ttl = v
		}
	}
	tok, err := utils.NewAccessToken(secret, *user, r, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "user=%d role=%s expires=%s\n", *user, r, tok.Exp.Format(time.RFC3339))
}
