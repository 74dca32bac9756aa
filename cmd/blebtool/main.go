// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command blebtool inspects and manipulates bleb repositories from the
// command line: get an object's contents, put new contents under a name,
// or merge one repository's objects into another.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/minexew/bleb"
)

var log = logrus.New()

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "blebtool",
		Short:        "Inspect and manipulate bleb repositories",
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	}

	root.AddCommand(getCmd(), putCmd(), mergeCmd())
	return root
}

var verbose bool

func openRepository(path string, allowCreate bool) (*bleb.Repository, error) {
	dev, err := bleb.OpenFileByteDevice(path, allowCreate)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}

	repo, err := bleb.Open(dev, bleb.OpenOptions{AllowCreate: allowCreate, Log: log})
	if err != nil {
		dev.Close()
		return nil, errors.Wrapf(err, "opening repository %q", path)
	}

	return repo, nil
}

func getCmd() *cobra.Command {
	var repository, outputFile string

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Get the contents of an object in the repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			repo, err := openRepository(repository, false)
			if err != nil {
				return err
			}
			defer repo.Close()

			contents, err := repo.GetObjectContents(name)
			if err != nil {
				return errors.Wrapf(err, "getting object %q", name)
			}
			if contents == nil {
				return errors.Errorf("object %q not found in %q", name, repository)
			}

			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return errors.Wrapf(err, "creating %q", outputFile)
				}
				defer f.Close()

				if _, err := f.Write(contents); err != nil {
					return errors.Wrapf(err, "writing %q", outputFile)
				}
				return nil
			}

			_, err = cmd.OutOrStdout().Write(contents)
			return err
		},
	}

	cmd.Flags().StringVarP(&repository, "repository", "R", "", "filename of the repository")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "path to the output file (standard output if not specified)")
	cmd.MarkFlagRequired("repository")

	return cmd
}

func putCmd() *cobra.Command {
	var repository, inputFile, text string
	var noInline bool

	cmd := &cobra.Command{
		Use:   "put <name>",
		Short: "Set the contents of an object in the repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			contents, err := readPutContents(text, inputFile)
			if err != nil {
				return err
			}

			repo, err := openRepository(repository, true)
			if err != nil {
				return err
			}
			defer repo.Close()

			opts := bleb.SetContentsOptions{PreferInlinePayload: !noInline}
			if err := repo.SetObjectContents(name, contents, opts); err != nil {
				return errors.Wrapf(err, "putting object %q", name)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&repository, "repository", "R", "", "filename of the repository")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "path to the input file (standard input if not specified)")
	cmd.Flags().StringVarP(&text, "text", "T", "", "directly specifies the data to store")
	cmd.Flags().BoolVar(&noInline, "no-inline", false, "store the object via a stream descriptor even if it would fit inline")
	cmd.MarkFlagRequired("repository")

	return cmd
}

func readPutContents(text, inputFile string) ([]byte, error) {
	if text != "" {
		return []byte(text), nil
	}

	if inputFile != "" {
		return os.ReadFile(inputFile)
	}

	return io.ReadAll(os.Stdin)
}

const mergeInlineThreshold = 256

func mergeCmd() *cobra.Command {
	var destination, prefix string

	cmd := &cobra.Command{
		Use:   "merge <source>",
		Short: "Merge one repository's objects into another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]

			src, err := openRepository(source, false)
			if err != nil {
				return err
			}
			defer src.Close()

			dst, err := openRepository(destination, true)
			if err != nil {
				return err
			}
			defer dst.Close()

			it := src.Enumerate()
			merged := 0

			for it.Next() {
				name := it.Name()

				contents, err := src.GetObjectContents(name)
				if err != nil {
					return errors.Wrapf(err, "reading object %q from %q", name, source)
				}

				opts := bleb.SetContentsOptions{PreferInlinePayload: len(contents) < mergeInlineThreshold}
				if err := dst.SetObjectContents(prefix+name, contents, opts); err != nil {
					return errors.Wrapf(err, "writing object %q to %q", prefix+name, destination)
				}

				merged++
			}

			if err := it.Err(); err != nil {
				return errors.Wrapf(err, "enumerating %q", source)
			}

			log.WithFields(logrus.Fields{"source": source, "destination": destination, "count": merged}).Info("blebtool: merge complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&destination, "repository", "R", "", "filename of the destination repository")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "prefix prepended to every merged object's name")
	cmd.MarkFlagRequired("repository")

	return cmd
}
