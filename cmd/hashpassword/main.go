// Command hashpassword prints the bcrypt hash for OPERATOR_PASSWORD_HASH.
// The password is read from the first line of stdin.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"paycalc/internal/domain/auth"
)

func main() {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		slog.Error("read password", "err", err)
		os.Exit(1)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		slog.Error("password is empty")
		os.Exit(1)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		slog.Error("hash password", "err", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
