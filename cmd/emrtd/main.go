// Command emrtd reads an electronic passport or identity card: it derives the
// access keys from the MRZ, runs Basic Access Control, and pulls the standard
// data groups over the resulting secure channel.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/ebfe/scard"
	"github.com/gregLibert/card-documents/internal/config"
	"github.com/gregLibert/card-documents/pkg/emrtd"
	"github.com/gregLibert/card-documents/pkg/iso7816"
	"github.com/gregLibert/card-documents/pkg/mrz"
	"github.com/gregLibert/card-documents/pkg/tlv"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	mrzPath := flag.String("mrz", "", "text file holding the MRZ lines (overrides config)")
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
	if *mrzPath != "" {
		cfg.EMRTD.MRZFile = *mrzPath
	}
	if cfg.EMRTD.MRZFile == "" {
		log.Fatal("No MRZ file given (use -mrz or the config file).")
	}

	// --- 1. Document keys from the printed MRZ ---
	record := readMRZ(cfg.EMRTD.MRZFile)
	fmt.Printf(">> Document %s issued by %s, holder %s\n",
		record.DocumentNumber, record.Issuer, record.PrimaryIdentifier)

	// --- 2. Hardware setup ---
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

	// --- 3. Application selection and access control ---
	cls, _ := iso7816.NewClass(0x00)
	selectTrace, err := client.Send(iso7816.SelectByAID(cls, emrtd.ApplicationID))
	if err != nil {
		log.Fatalf("Select application failed: %v", err)
	}
	selectRes, err := iso7816.NewSelectResult(selectTrace)
	if err != nil {
		log.Fatalf("Select application failed: %v", err)
	}
	if *debug {
		fmt.Println(selectRes.Describe())
	}
	if !selectRes.IsSuccess() {
		log.Fatalf("Select application failed: %s", selectRes.Last().Response.Status.Verbose())
	}

	channel, err := emrtd.Authenticate(client, record)
	if err != nil {
		log.Fatalf("Basic Access Control failed: %v", err)
	}
	defer func() {
		if err := channel.Close(); err != nil {
			log.Printf("Warning: Failed to close channel: %v", err)
		}
	}()

	fmt.Println(">> Basic Access Control established")

	// --- 4. Data groups over the secure channel ---
	files := []struct {
		name string
		fid  uint16
	}{
		{"EF.COM", emrtd.FileCOM},
		{"EF.DG1", emrtd.FileDG1},
		{"EF.DG2", emrtd.FileDG2},
		{"EF.SOD", emrtd.FileSOD},
	}

	for _, f := range files {
		data, err := emrtd.ReadFile(channel, f.fid)
		if err != nil {
			log.Printf("(!) %s: %v", f.name, err)
			continue
		}
		fmt.Printf("\n=== %s (%d bytes) ===\n", f.name, len(data))
		hexDump(data)

		if f.fid == emrtd.FileDG1 {
			crossCheckDG1(data, record)
		}
	}
}

// =========================================================================
// Helper Functions
// =========================================================================

func readMRZ(path string) *mrz.Record {
	text, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Error reading MRZ file: %v", err)
	}
	record, err := mrz.Parse(string(text))
	if err != nil {
		log.Fatalf("Error parsing MRZ: %v", err)
	}
	return record
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

// crossCheckDG1 compares the chip's MRZ against the printed one.
func crossCheckDG1(data []byte, printed *mrz.Record) {
	chip, err := emrtd.ParseDG1(data)
	if err != nil {
		log.Printf("(!) DG1 parse failed: %v", err)
		return
	}
	if chip.DocumentNumber != printed.DocumentNumber {
		log.Printf("(!) DG1 document number %q does not match printed MRZ %q",
			chip.DocumentNumber, printed.DocumentNumber)
		return
	}
	fmt.Printf("   -> DG1 matches the printed MRZ (%s)\n", chip.DocumentNumber)
}

// hexDump prints data in 16-byte rows with an ASCII gutter.
func hexDump(data []byte) {
	for offset := 0; offset < len(data); offset += 16 {
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[offset:end]
		fmt.Printf("    %04X  %-48X  %s\n", offset, row, tlv.MakeSafeASCII(row))
	}
}
