package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func main() {
	size := 32
	if len(os.Args) > 1 {
		if _, err := fmt.Sscanf(os.Args[1], "%d", &size); err != nil || size < 32 {
			fmt.Println("Usage: go run cmd/keygen/main.go [bytes]")
			fmt.Println("Generates a random JWT_SECRET for admin sessions (at least 32 bytes)")
			os.Exit(1)
		}
	}

	secret := make([]byte, size)
	if _, err := rand.Read(secret); err != nil {
		fmt.Fprintf(os.Stderr, "read random bytes: %v\n", err)
		os.Exit(1)
	}
	encoded := base64.RawURLEncoding.EncodeToString(secret)

	fmt.Printf("JWT secret (%d bytes): %s\n", size, encoded)
	fmt.Println("\nAdd this to your .env:")
	fmt.Printf("  JWT_SECRET=%s\n", encoded)
}
