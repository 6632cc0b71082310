package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tiktokbpe/internal/envconfig"
	"github.com/tiktokbpe/internal/source"
	"github.com/tiktokbpe/internal/vocab"
)

func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func ListHandler(cmd *cobra.Command, args []string) error {
	var data [][]string
	for _, def := range vocab.Definitions() {
		vocabSize := "-"
		if def.ExplicitNVocab > 0 {
			vocabSize = strconv.Itoa(def.ExplicitNVocab)
		}
		data = append(data, []string{def.Name, def.Format.String(), vocabSize, strings.Join(def.Files, ",")})
	}

	renderTable(cmd.OutOrStdout(), []string{"NAME", "FORMAT", "VOCAB", "FILES"}, data)
	return nil
}

func InspectHandler(cmd *cobra.Command, args []string) error {
	r, err := newRegistry(cmd)
	if err != nil {
		return err
	}

	showSpecial, err := cmd.Flags().GetBool("special")
	if err != nil {
		return err
	}

	if len(args) == 0 {
		for _, def := range vocab.Definitions() {
			args = append(args, def.Name)
		}
	}

	var data, special [][]string
	for _, name := range args {
		enc, err := r.ForModel(cmd.Context(), name)
		if err != nil {
			return err
		}

		d := enc.Descriptor()
		data = append(data, []string{
			d.Name(),
			strconv.Itoa(len(d.Ranks())),
			strconv.Itoa(len(d.SpecialTokens())),
			strconv.Itoa(d.VocabSize()),
			strconv.Itoa(d.MaxTokenValue()),
		})

		tokens := d.SpecialTokens()
		names := make([]string, 0, len(tokens))
		for s := range tokens {
			names = append(names, s)
		}
		slices.SortFunc(names, func(a, b string) int { return tokens[a] - tokens[b] })
		for _, s := range names {
			special = append(special, []string{d.Name(), s, strconv.Itoa(tokens[s])})
		}
	}

	renderTable(cmd.OutOrStdout(), []string{"NAME", "RANKS", "SPECIAL", "VOCAB", "MAX TOKEN"}, data)
	if showSpecial {
		fmt.Fprintln(cmd.OutOrStdout())
		renderTable(cmd.OutOrStdout(), []string{"ENCODING", "TOKEN", "ID"}, special)
	}
	return nil
}

func FetchHandler(cmd *cobra.Command, args []string) error {
	parallel, err := cmd.Flags().GetInt("parallel")
	if err != nil {
		return err
	}

	defs := vocab.Definitions()
	if len(args) > 0 {
		defs = defs[:0:0]
		for _, name := range args {
			def, err := vocab.Lookup(name)
			if err != nil {
				return err
			}
			defs = append(defs, def)
		}
	}

	var files []string
	for _, def := range defs {
		for _, f := range def.Files {
			if !slices.Contains(files, f) {
				files = append(files, f)
			}
		}
	}

	dir, err := cmd.Flags().GetString("vocab-dir")
	if err != nil {
		return err
	}

	// with a local directory this only checks the files are present
	src, where := source.FromEnv(), envconfig.CacheDir()
	if d := envconfig.VocabDir(); d != "" {
		where = d
	}
	if dir != "" {
		src, where = source.Dir(dir), dir
	}

	if err := source.Prefetch(cmd.Context(), src, files, parallel); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d files ready in %s\n", len(files), where)
	return nil
}
