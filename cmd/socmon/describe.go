package main

import (
	"github.com/spf13/cobra"

	"github.com/ja7ad/socmon/pkg/descriptor"
)

func newDescribeCmd(g *globals) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the SoC capability descriptor",
		Long: `Print the static capability descriptor as it crosses the C boundary:
identity strings are cut to 63 bytes and frequency lists to 32 steps.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc, err := newEncoder(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			_, caps := cfg.Sources(log)
			d, err := descriptor.New(caps, descriptor.WithLogger(log)).Query()
			if err != nil {
				return err
			}
			if err := enc.descriptor(d); err != nil {
				return err
			}
			return enc.close()
		},
	}
	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table, json, yaml, cbor or raw")
	return cmd
}
