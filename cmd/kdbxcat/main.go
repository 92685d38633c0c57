// Copyright 2016 - 2023 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command kdbxcat is a thin, read-only wrapper around the kdbx library: it
// opens a KDBX v3 container and prints its header summary and decrypted XML
// payload. It has no semantics of its own beyond argument/config plumbing;
// the core decode logic lives entirely in the kdbx package (see
// SPEC_FULL.md section 12).
package main

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdbx-go/kdbx"
)

var (
	flagPassword string
	flagKeyFile  string
	flagVerbose  bool

	logger *slog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kdbxcat",
		Short: "Read and print the contents of a KDBX v3 password database",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initConfig()
			level := slog.LevelWarn
			if flagVerbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		},
	}

	root.PersistentFlags().StringVar(&flagPassword, "password", "", "database password")
	root.PersistentFlags().StringVar(&flagKeyFile, "keyfile", "", "path to a key file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	_ = viper.BindPFlag("password", root.PersistentFlags().Lookup("password"))
	_ = viper.BindPFlag("keyfile", root.PersistentFlags().Lookup("keyfile"))

	root.AddCommand(newOpenCmd())
	return root
}

func initConfig() {
	viper.SetConfigName(".kdbxcat")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetEnvPrefix("KDBXCAT")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // absence of a config file is not an error
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <file>",
		Short: "Decode a KDBX v3 database and print its header and XML payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(args[0])
		},
	}
}

func runOpen(path string) error {
	password := viper.GetString("password")
	keyFilePath := viper.GetString("keyfile")

	ck := kdbx.NewCompositeKey()
	if password != "" {
		ck.Push(kdbx.NewPasswordKey(password))
	}
	if keyFilePath != "" {
		raw, err := os.ReadFile(keyFilePath)
		if err != nil {
			return fmt.Errorf("reading key file: %w", err)
		}
		fileKey, err := kdbx.LoadFileKeySource(raw)
		if err != nil {
			return fmt.Errorf("parsing key file: %w", err)
		}
		ck.Push(fileKey)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer f.Close()

	logger.Debug("decoding database", "path", path)

	db, err := kdbx.NewReader(ck).ReadFrom(f)
	if err != nil {
		var kerr *kdbx.Error
		if ok := asKdbxError(err, &kerr); ok {
			logger.Error("failed to open database", "kind", string(kerr.Kind), "error", kerr.Error())
		}
		return err
	}

	printSummary(db)
	return printXML(db)
}

func asKdbxError(err error, target **kdbx.Error) bool {
	for err != nil {
		if kerr, ok := err.(*kdbx.Error); ok {
			*target = kerr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func printSummary(db *kdbx.Database) {
	fmt.Printf("version: %d.%d\n", db.Version.Major, db.Version.Minor)
	fmt.Printf("compression: %v\n", db.Compression)
	fmt.Printf("cipher: %v\n", db.OuterCipher)
	fmt.Printf("transform rounds: %d\n", db.TransformRounds)
	fmt.Printf("inner stream cipher: %v\n", db.InnerStreamCipher)
}

func printXML(db *kdbx.Database) error {
	enc := xml.NewEncoder(os.Stdout)
	enc.Indent("", "  ")
	return enc.Encode(db.XMLDoc)
}
