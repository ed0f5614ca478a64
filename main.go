package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"cool-codegen/ast"
	"cool-codegen/astfile"
	codegen "cool-codegen/codeGen"
	"cool-codegen/config"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	inputFilePath := flag.String("i", "", "Path to the type-checked program (CBOR)")
	outputFilePath := flag.String("o", "", "Path of the LLVM IR output (default: input with .ll)")
	configPath := flag.String("config", "", "Path to "+config.FileName+" (default: search upward from the input)")
	entry := flag.String("entry", "", "Entry point as Class.method")
	verbosity := flag.Int("v", -1, "Log verbosity (0 quiet, 1 info, 2 debug)")
	dump := flag.Bool("dump", false, "Print the decoded AST before generating code")
	flag.Parse()

	if *inputFilePath == "" {
		fmt.Println("Error: Input file path is required.")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath, *inputFilePath)
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *entry != "" {
		if err := cfg.SetEntry(*entry); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *verbosity >= 0 {
		cfg.Log.Verbosity = *verbosity
	}
	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, logFile)

	program, err := astfile.ReadFile(*inputFilePath)
	if err != nil {
		fmt.Printf("Error reading input file: %v\n", err)
		os.Exit(1)
	}

	if *dump {
		fmt.Print(ast.NewPrinter().PrintProgram(program))
	}

	codeGen := codegen.New(cfg.Options())
	module, err := codeGen.Generate(program)
	if err != nil {
		fmt.Printf("Code generation error: %v\n", err)
		for _, msg := range codeGen.Errors() {
			fmt.Println(msg)
		}
		os.Exit(1)
	}

	outputPath := *outputFilePath
	if outputPath == "" {
		outputPath = cfg.OutputPath(*inputFilePath)
	}
	if err := os.WriteFile(outputPath, []byte(module.String()), 0o644); err != nil {
		fmt.Printf("Error writing output file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("LLVM IR code written to %s\n", outputPath)
}

// loadConfig reads the explicit file if one was given, otherwise the
// nearest coolc.toml above the input, otherwise the defaults.
func loadConfig(path, input string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.FindAndLoad(filepath.Dir(input))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}
