package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"llm-assistant/internal/keys"
)

func main() {
	_ = godotenv.Load(".env")

	if len(os.Args) < 2 {
		log.Fatal("Usage: encrypt-key <api_key> [master_key]")
	}
	master := os.Getenv("LLM_MODEL_DECRYPT_KEY")
	if len(os.Args) > 2 {
		master = os.Args[2]
	}

	out, err := encrypt(os.Args[1], master, os.Getenv("LLM_KEY_CIPHER"))
	if err != nil {
		log.Fatalf("Failed to encrypt key: %v", err)
	}
	fmt.Println(out)
}

func encrypt(apiKey, master, cipherName string) (string, error) {
	key, err := keys.ParseMasterKey(master)
	if err != nil {
		return "", err
	}
	c, err := keys.New(cipherName, key)
	if err != nil {
		return "", err
	}
	return c.Encrypt(apiKey)
}
