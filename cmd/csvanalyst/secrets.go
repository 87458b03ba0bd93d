package main

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"csvanalyst/pkg/config"
)

// handleSecretsDecryption loads the encrypted secrets file into memory when it exists.
// The password comes from CSVANALYST_PASSWORD or, on a terminal, from a prompt.
func handleSecretsDecryption(projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}

	password := os.Getenv(config.EnvPassword)
	if password == "" {
		var err error
		if password, err = promptForPassword(); err != nil {
			return err
		}
	}

	secrets, err := config.DecryptSecretsFile(projectDir, password)
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	config.LogInfo("🔐 Loaded %d secrets from %s", len(secrets), config.SecretsFilePath(projectDir))
	return nil
}

func promptForPassword() (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("secrets file is encrypted: set %s or run from a terminal", config.EnvPassword)
	}

	fmt.Print("Enter the csvanalyst secrets password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password := string(raw)
	for i := range raw {
		raw[i] = 0
	}
	return password, nil
}
