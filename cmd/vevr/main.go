// Command vevr reads a VEVR-01 vehicle registration card, dumps its files to
// disk, and verifies the issuing authority's signature.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ebfe/scard"
	"github.com/gregLibert/card-documents/internal/config"
	"github.com/gregLibert/card-documents/pkg/iso7816"
	"github.com/gregLibert/card-documents/pkg/vevr"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	dumpDir := flag.String("out", "", "directory for .bin dumps (overrides config)")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		cfg = loaded
	}
	if *dumpDir != "" {
		cfg.VEVR.DumpDir = *dumpDir
	}

	// --- 1. Hardware setup ---
	ctx, card := connectToCard(cfg.Reader.Index)

	defer func() {
		if err := ctx.Release(); err != nil {
			log.Printf("Warning: Failed to release context: %v", err)
		}
	}()

	defer func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			log.Printf("Warning: Failed to disconnect card: %v", err)
		}
	}()

	client := iso7816.NewClient(card)

	// --- 2. Pull the application files ---
	doc, err := vevr.ReadAll(client)
	if err != nil {
		log.Fatalf("Reading card failed: %v", err)
	}

	dumps := map[uint16][]byte{
		vevr.FileRegistration: doc.Registration,
		vevr.FileCertificate:  doc.Certificate,
		vevr.FileSignature:    doc.Signature,
	}
	for fid, data := range dumps {
		path := filepath.Join(cfg.VEVR.DumpDir, fmt.Sprintf("%04X.bin", fid))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Fatalf("Error writing %s: %v", path, err)
		}
		fmt.Printf(">> Wrote %s (%d bytes)\n", path, len(data))
	}

	// --- 3. Registration content ---
	reg, err := vevr.ParseRegistration(doc.Registration)
	if err != nil {
		log.Fatalf("Parsing registration failed: %v", err)
	}
	fmt.Println(reg.Describe())

	if len(reg.A.RegistrationNumber) > 0 {
		fmt.Printf("\n>> Registration number: %s\n", vevr.DecodeText(reg.A.RegistrationNumber))
	}
	if len(reg.B.HolderName) > 0 {
		fmt.Printf(">> Holder: %s\n", vevr.DecodeText(reg.B.HolderName))
	}

	// --- 4. Signature verification ---
	if err := doc.Verify(); err != nil {
		log.Fatalf("SIGNATURE INVALID: %v", err)
	}
	fmt.Println("\n>> Signature verified against the card certificate")
}

// connectToCard handles the PC/SC context establishment and reader connection.
func connectToCard(readerIndex *int) (*scard.Context, *scard.Card) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		log.Fatalf("Error establishing context: %s", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatal("No smart card reader found.")
	}

	index := 0
	if readerIndex != nil {
		index = *readerIndex
	}
	if index >= len(readers) {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("Reader index %d out of range (%d readers).", index, len(readers))
	}

	fmt.Printf(">> Using reader: %s\n", readers[index])

	card, err := ctx.Connect(readers[index], scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("Error connecting to card: %s", err)
	}

	return ctx, card
}
