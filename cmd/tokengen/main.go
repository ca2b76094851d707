// Command tokengen mints credentials for calling the API: either an HS256
// service JWT (signed with JWT_SECRET) or a random static token with the
// bcrypt hash to set as API_TOKEN_HASH.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/auth"
)

func main() {
	mode := flag.String("mode", "jwt", "credential type: jwt or static")
	subject := flag.String("subject", "whatsapp-bot", "jwt subject")
	ttl := flag.Duration("ttl", 0, "jwt lifetime, 0 for no expiry")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "jwt signing secret")
	flag.Parse()

	switch *mode {
	case "jwt":
		token, err := auth.IssueServiceToken(*secret, *subject, *ttl)
		if err != nil {
			fail(err)
		}
		fmt.Println(token)
	case "static":
		pair, err := auth.NewAPIToken()
		if err != nil {
			fail(err)
		}
		fmt.Printf("token: %s\nAPI_TOKEN_HASH=%s\n", pair.Token, pair.Hash)
	default:
		fail(fmt.Errorf("unknown mode %q", *mode))
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
	os.Exit(1)
}
