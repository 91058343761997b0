package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-research/etfkit/internal/etf"
	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var errTerminalInput = errors.New("refusing to read JSON from a terminal; pass an input file or pipe one in")

// stdio is the file name standing for stdin or stdout.
const stdio = "-"

func absPath(name string) (string, error) {
	p, err := filepath.Abs(name)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	return p, nil
}

// argAt returns args[i], or "-" when it is absent.
func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return stdio
}

// readTree loads a document from a file or from the command's stdin.
func (a *app) readTree(cmd *cobra.Command, name string) (*jsontree.Tree, error) {
	if name != stdio {
		path, err := absPath(name)
		if err != nil {
			return nil, err
		}
		return a.loader.Load(path)
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil, errTerminalInput
	}
	return a.loader.Read(in, "<stdin>")
}

// readCountry loads a country data file against the configured metadata.
func (a *app) readCountry(cmd *cobra.Command, name string) (*etf.CountryData, error) {
	metadata, err := a.loadMetadata()
	if err != nil {
		return nil, err
	}
	tree, err := a.readTree(cmd, name)
	if err != nil {
		return nil, err
	}
	return etf.NewCountryData(tree, metadata, a.etfOptions()...)
}

// writeTree encodes the document to a file or to the command's stdout.
func (a *app) writeTree(cmd *cobra.Command, tree *jsontree.Tree, name string) error {
	opts := jsontree.EncodeOptions{Indent: a.cfg.Indent, ASCII: a.cfg.UseASCII()}
	if name == stdio {
		return jsontree.Encode(cmd.OutOrStdout(), tree.Root, opts)
	}
	path, err := absPath(name)
	if err != nil {
		return err
	}
	f, err := a.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := jsontree.Encode(f, tree.Root, opts); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	a.log.Debug("document written", "file", name)
	return nil
}
