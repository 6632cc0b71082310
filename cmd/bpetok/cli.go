package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tiktokbpe/bpetok"
	"github.com/tiktokbpe/internal/envconfig"
	"github.com/tiktokbpe/internal/logutil"
)

const defaultModel = "gpt-4o"

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bpetok",
		Short: "Byte-level BPE tokenizer for OpenAI vocabularies",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
	}

	rootCmd.PersistentFlags().String("vocab-dir", "", "Read rank files from this directory instead of downloading")

	cobra.EnableCommandSorting = false

	encodeCmd := &cobra.Command{
		Use:   "encode [TEXT...]",
		Short: "Print the token ids of TEXT, or of stdin",
		RunE:  EncodeHandler,
	}
	encodeCmd.Flags().StringP("model", "m", defaultModel, "Model or encoding name")
	encodeCmd.Flags().StringSlice("allow-special", nil, "Special tokens to encode as such, or \"all\"")
	encodeCmd.Flags().Bool("stream", false, "Encode stdin incrementally")

	decodeCmd := &cobra.Command{
		Use:   "decode [ID...]",
		Short: "Print the text of token ids given as arguments or on stdin",
		RunE:  DecodeHandler,
	}
	decodeCmd.Flags().StringP("model", "m", defaultModel, "Model or encoding name")

	countCmd := &cobra.Command{
		Use:   "count [TEXT...]",
		Short: "Print the number of tokens in TEXT, or in stdin",
		RunE:  CountHandler,
	}
	countCmd.Flags().StringP("model", "m", defaultModel, "Model or encoding name")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List built-in encodings",
		Args:    cobra.NoArgs,
		RunE:    ListHandler,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect [ENCODING...]",
		Short: "Load encodings and show their vocabulary",
		RunE:  InspectHandler,
	}
	inspectCmd.Flags().Bool("special", false, "List special tokens")

	fetchCmd := &cobra.Command{
		Use:   "fetch [ENCODING...]",
		Short: "Download rank files into the cache",
		RunE:  FetchHandler,
	}
	fetchCmd.Flags().Int("parallel", 4, "Maximum concurrent downloads")

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show environment configuration",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}

	rootCmd.AddCommand(
		encodeCmd,
		decodeCmd,
		countCmd,
		listCmd,
		inspectCmd,
		fetchCmd,
		envCmd,
	)

	return rootCmd
}

func newRegistry(cmd *cobra.Command) (*bpetok.Registry, error) {
	dir, err := cmd.Flags().GetString("vocab-dir")
	if err != nil {
		return nil, err
	}

	if dir != "" {
		return bpetok.NewRegistry(bpetok.DirSource(dir), bpetok.EnvOptions()...), nil
	}
	return bpetok.Default(), nil
}

func encodingFor(cmd *cobra.Command) (*bpetok.Encoding, error) {
	model, err := cmd.Flags().GetString("model")
	if err != nil {
		return nil, err
	}

	r, err := newRegistry(cmd)
	if err != nil {
		return nil, err
	}
	return r.ForModel(cmd.Context(), model)
}

// inputText joins args, or reads all of stdin when there are none.
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func EncodeHandler(cmd *cobra.Command, args []string) error {
	enc, err := encodingFor(cmd)
	if err != nil {
		return err
	}

	stream, err := cmd.Flags().GetBool("stream")
	if err != nil {
		return err
	}

	if stream {
		if len(args) > 0 {
			return fmt.Errorf("--stream reads stdin and takes no arguments")
		}
		return encodeStream(cmd, enc)
	}

	allowed, err := cmd.Flags().GetStringSlice("allow-special")
	if err != nil {
		return err
	}

	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}

	var ids []int
	if len(allowed) > 0 {
		ids, err = enc.EncodeWithSpecial(text, allowed, nil)
		if err != nil {
			return err
		}
	} else {
		ids = enc.Encode(text)
	}

	return printIDs(cmd.OutOrStdout(), ids)
}

func encodeStream(cmd *cobra.Command, enc *bpetok.Encoding) error {
	var e bpetok.Encoder = enc.NewStreamEncoder()
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	first := true
	emit := func(ids []int) {
		for _, id := range ids {
			if !first {
				fmt.Fprint(out, " ")
			}
			fmt.Fprint(out, id)
			first = false
		}
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			emit(e.Feed(buf[:n]))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	emit(e.Flush())
	fmt.Fprintln(out)
	return nil
}

func printIDs(w io.Writer, ids []int) error {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

func DecodeHandler(cmd *cobra.Command, args []string) error {
	enc, err := encodingFor(cmd)
	if err != nil {
		return err
	}

	fields := args
	if len(fields) == 0 {
		text, err := inputText(cmd, nil)
		if err != nil {
			return err
		}
		fields = strings.Fields(text)
	}

	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		// accept "[1, 2, 3]" as printed by other tools
		f = strings.Trim(f, "[],")
		if f == "" {
			continue
		}

		id, err := strconv.Atoi(f)
		if err != nil {
			return fmt.Errorf("invalid token id %q", f)
		}
		ids = append(ids, id)
	}

	b, err := enc.DecodeBytes(ids)
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(b)
	return err
}

func CountHandler(cmd *cobra.Command, args []string) error {
	enc, err := encodingFor(cmd)
	if err != nil {
		return err
	}

	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), enc.Count(text))
	return err
}

func EnvHandler(cmd *cobra.Command, args []string) error {
	vars := envconfig.AsMap()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var data [][]string
	for _, k := range keys {
		v := vars[k]
		data = append(data, []string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}

	renderTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"}, data)
	return nil
}
