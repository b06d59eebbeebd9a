// Command hashpw prints a bcrypt digest for a password read from stdin,
// for seeding users directly into a credential store.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/scoutnetworking/scout-auth/internal/core/service"
)

type options struct {
	BcryptRounds int `env:"BCRYPT_ROUNDS, default=12"`
}

func main() {
	_ = godotenv.Load()

	var opts options
	if err := envconfig.Process(context.Background(), &opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		fmt.Fprintln(os.Stderr, "hashpw: read password from stdin:", err)
		os.Exit(1)
	}
	password = strings.TrimRight(password, "\r\n")

	hasher, err := service.NewBcryptHasher(opts.BcryptRounds, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpw:", err)
		os.Exit(1)
	}
	digest, err := hasher.Hash(context.Background(), password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpw:", err)
		os.Exit(1)
	}
	fmt.Println(digest)
}
