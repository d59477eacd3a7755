package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bicodown/pkg/bvid"
	"bicodown/pkg/ui"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:     "decode <BV...>",
	Short:   "Convert a BV shortcode to its numeric aid",
	Example: `  bicodown decode BV1xx411c7mD`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		aid, err := bvid.Decode(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(ui.Output, aid)
		return nil
	},
}

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:     "encode <aid>",
	Short:   "Convert a numeric aid to its BV shortcode",
	Example: `  bicodown encode 2`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(args[0])), "av")
		aid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid aid %q", args[0])
		}
		code, err := bvid.Encode(aid)
		if err != nil {
			return err
		}
		fmt.Fprintln(ui.Output, code)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
}
