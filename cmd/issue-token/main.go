// Command issue-token signs a bearer token for staff or admin use when no
// OIDC provider is configured.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ms-distribution/internal/auth"
	"ms-distribution/internal/config"
)

func main() {
	subject := flag.String("sub", "", "subject (user id)")
	role := flag.String("role", auth.RoleStaff, "staff or admin")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET not set")
		os.Exit(1)
	}
	if *subject == "" || (*role != auth.RoleStaff && *role != auth.RoleAdmin) {
		flag.Usage()
		os.Exit(2)
	}

	token, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), *subject, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
