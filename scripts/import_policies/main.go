package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/importer"
)

// Reads POLICY_WORKBOOK and writes the catalogue to POLICIES_FILE.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	workbook := os.Getenv("POLICY_WORKBOOK")
	if workbook == "" {
		log.Fatal("POLICY_WORKBOOK is required")
	}
	out := os.Getenv("POLICIES_FILE")
	if out == "" {
		out = "configs/policies.yaml"
	}

	policies, problems, err := importer.ReadWorkbook(workbook)
	if err != nil {
		log.Fatal(err)
	}
	for _, p := range problems {
		fmt.Printf("Skipped: %v\n", p)
	}

	policies, err = config.NormalizePolicies(policies)
	if err != nil {
		log.Fatal("invalid catalogue:", err)
	}
	if err := config.WritePolicyCatalogue(out, policies); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Imported %d policies into %s (%d rows skipped).\n", len(policies), out, len(problems))
}
