package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tesseradb/tessera/uid"
)

func uidCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uid",
		Short: "Convert UIDs between numeric and binary form",
	}
	cmd.AddCommand(uidEncodeCommand())
	cmd.AddCommand(uidDecodeCommand())
	return cmd
}

func uidEncodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <metrics|tagk|tagv> <number>",
		Short: "Encode a numeric id as fixed-width bytes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := uid.ParseType(args[0])
			if err != nil {
				return err
			}
			v, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "bad id %q", args[1])
			}
			id, err := uid.FromLong(v, config.UID.Width(t))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%s\n", hex.EncodeToString(id))
			return nil
		},
	}
}

func uidDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <metrics|tagk|tagv> <hex>",
		Short: "Decode fixed-width bytes into a numeric id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := uid.ParseType(args[0])
			if err != nil {
				return err
			}
			id, err := hex.DecodeString(args[1])
			if err != nil {
				return errors.Wrap(err, "id is not valid hex")
			}
			v, err := uid.ToLong(id, config.UID.Width(t))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", v)
			return nil
		},
	}
}
