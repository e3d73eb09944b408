package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"harbor/pkg/crypto"
)

var (
	keyCmd = &cobra.Command{
		Use:   "key",
		Short: "Manage encryption keys",
		Long:  "Generate encryption keys for Harbor's credential store",
	}

	keyGenerateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Generate a new encryption key",
		Long:  "Generate a new 32-byte encryption key and display it",
		RunE:  runKeyGenerate,
	}
)

func runKeyGenerate(cmd *cobra.Command, args []string) error {
	key, err := crypto.GenerateRandomKey()
	if err != nil {
		return fmt.Errorf("failed to generate encryption key: %w", err)
	}

	fmt.Printf("✅ New encryption key generated:\n")
	fmt.Printf("%s\n\n", key.Hex())
	fmt.Printf("💡 To use this key, export HARBOR_ENCRYPTION_KEY=%s\n", key.Hex())
	fmt.Printf("⚠️  Keep this key secure - it encrypts all retained credentials!\n")

	return nil
}
