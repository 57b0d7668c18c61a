package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/btf2json/internal/btf"
	"github.com/skdltmxn/btf2json/internal/config"
	"github.com/skdltmxn/btf2json/internal/image"
	"github.com/skdltmxn/btf2json/internal/sysmap"
	"github.com/skdltmxn/btf2json/isf"
)

var (
	btfFile     string
	mapFile     string
	banner      string
	arch        string
	configFile  string
	imageFile   string
	outputFile  string
	showVersion bool
	verbose     bool
	debug       bool

	output io.Writer
)

var rootCmd = &cobra.Command{
	Use:   "btf2json",
	Short: "Generate Volatility 3 ISF files from BTF type information",
	Long: `btf2json generates Volatility 3 intermediate symbol files from
BTF type information and System.map symbol tables.

The type source can be a standalone BTF section or a kernel image
(vmlinux) containing a .BTF section.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelError
		if verbose {
			level = slog.LevelInfo
		}
		if debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))

		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			output = f
		} else {
			output = os.Stdout
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if f, ok := output.(*os.File); ok && f != os.Stdout {
			f.Close()
		}
	},
	RunE: runGenerate,
}

func init() {
	rootCmd.Flags().StringVar(&btfFile, "btf", "", "BTF file for obtaining type information (can also be a kernel image)")
	rootCmd.Flags().StringVar(&mapFile, "map", "", "System.map file for obtaining symbol names and addresses")
	rootCmd.Flags().StringVar(&banner, "banner", "", "Linux banner (takes precedence over all other banner sources)")
	rootCmd.Flags().StringVar(&arch, "arch", "x86_64", "kernel architecture (x86_64, arm64)")
	rootCmd.Flags().StringVar(&configFile, "config", "", "TOML configuration file")
	rootCmd.Flags().StringVar(&imageFile, "image", "", "memory image to extract information from (not implemented)")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print btf2json version")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "display debug output")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "display more debug output")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Fprintf(output, "v%s\n", isf.ProducerVersion)
		return nil
	}
	if imageFile != "" {
		return errors.New("extracting information from memory images is not implemented")
	}
	if btfFile == "" {
		return errors.New("a type source is required, pass one with --btf")
	}

	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
	}
	archInfo, err := cfg.ArchInfo(arch)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(btfFile)
	if err != nil {
		return fmt.Errorf("failed to read type source: %w", err)
	}
	src, err := image.Detect(raw)
	if err != nil {
		return err
	}

	store, err := btf.New(src.Section, src.Endian.Order())
	if err != nil {
		return fmt.Errorf("failed to parse BTF section: %w", err)
	}
	part, err := store.PartitionGraph()
	if err != nil {
		return err
	}

	table, err := buildSymbols(raw, archInfo)
	if err != nil {
		return err
	}

	endian := isf.Little
	if src.Endian == image.Big {
		endian = isf.Big
	}
	doc, err := isf.Generate(store, part, table, &isf.Options{
		ProducerName:    cfg.Producer.Name,
		ProducerVersion: cfg.Producer.Version,
		Endian:          endian,
		PointerSize:     archInfo.PointerSize,
		BTFName:         filepath.Base(btfFile),
		BTFRaw:          raw,
	})
	if err != nil {
		return fmt.Errorf("failed to generate profile: %w", err)
	}

	// Symbol types come from a database, so missing types are expected for
	// some kernel builds. Repair and keep going.
	_ = doc.FixSymbolTypes()
	if debug {
		_ = doc.CheckUserTypes()
	}

	return doc.Dump(output)
}

// buildSymbols assembles the symbol table from the System.map file, the
// embedded type database and the banner. Without a System.map the profile
// carries no symbols.
func buildSymbols(typeSource []byte, archInfo config.Arch) (*sysmap.Table, error) {
	b := sysmap.NewBuilder(uint64(archInfo.BaseOffset))
	if mapFile == "" {
		slog.Info("no System.map given, profile will carry no symbols")
		return b.Build(), nil
	}

	if err := b.AddSystemMap(mapFile); err != nil {
		return nil, err
	}
	if err := b.AddSymdbTypes(); err != nil {
		return nil, err
	}

	// A user-supplied banner wins over one extracted from the image.
	resolved := banner
	if resolved == "" {
		var err error
		resolved, err = image.Banner(typeSource)
		if err != nil {
			return nil, fmt.Errorf("no banner given and none found in type source: %w", err)
		}
	}
	if err := b.AddBanner(resolved); err != nil {
		return nil, err
	}

	return b.Build(), nil
}
