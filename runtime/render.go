package main

import (
	"fmt"
	"io"

	"github.com/requiem-ai/gemrelay/markup"
	"github.com/spf13/cobra"
)

const chunkSeparator = "----- chunk %d/%d (%d units) -----"

func newRenderCmd() *cobra.Command {
	var (
		dialect string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Transcode markdown from stdin and print the Telegram chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderChunks(cmd.InOrStdin(), cmd.OutOrStdout(), dialect, limit)
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", string(markup.DialectHTML), "Markup dialect: html or markdownv2")
	cmd.Flags().IntVar(&limit, "limit", markup.DefaultLimit, "Maximum chunk length in UTF-16 code units")

	return cmd
}

func renderChunks(in io.Reader, out io.Writer, dialect string, limit int) error {
	d, err := markup.ParseDialect(dialect)
	if err != nil {
		return err
	}
	transcoder, err := markup.NewTranscoder(d, limit)
	if err != nil {
		return err
	}

	raw, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	chunks := transcoder.Transcode(string(raw))
	for i, chunk := range chunks {
		if _, err := fmt.Fprintf(out, chunkSeparator+"\n%s\n", i+1, len(chunks), markup.Width(chunk), chunk); err != nil {
			return err
		}
	}
	return nil
}
