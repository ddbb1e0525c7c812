package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func rowKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rowkey",
		Short: "Decode and inspect binary row keys",
	}
	cmd.AddCommand(rowKeyDecodeCommand())
	cmd.AddCommand(rowKeySaltCommand())
	return cmd
}

func rowKeyDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex-key>",
		Short: "Decode a row key into its components",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hex.DecodeString(args[0])
			if err != nil {
				return errors.Wrap(err, "key is not valid hex")
			}
			s, err := newSchema()
			if err != nil {
				return err
			}

			rk, err := s.ParseRowKey(key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "metric uid:  0x%s\n", hex.EncodeToString(rk.MetricUID))
			fmt.Fprintf(out, "base time:   %d (%s)\n", rk.BaseTime,
				time.Unix(rk.BaseTime, 0).UTC().Format(time.RFC3339))
			for i, p := range rk.Tags {
				fmt.Fprintf(out, "tag %d:       tagk 0x%s  tagv 0x%s\n",
					i, hex.EncodeToString(p.Key), hex.EncodeToString(p.Value))
			}

			tsuid, err := s.TSUID(key)
			if err != nil {
				return err
			}
			hash, err := s.TSUIDHash(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "tsuid:       0x%s\n", hex.EncodeToString(tsuid))
			fmt.Fprintf(out, "tsuid hash:  %016x\n", hash)
			if s.SaltWidth() > 0 {
				fmt.Fprintf(out, "salt bucket: %d\n", s.SaltBucket(key))
			}
			return nil
		},
	}
}

func rowKeySaltCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "salt <hex-key>",
		Short: "Compute the salt bucket of a row key under the configured algorithm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hex.DecodeString(args[0])
			if err != nil {
				return errors.Wrap(err, "key is not valid hex")
			}
			s, err := newSchema()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", s.SaltBucket(key))
			return nil
		},
	}
}
