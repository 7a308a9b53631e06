package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/coopdoor/internal/protocol"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex frame...]",
	Short: "Decode captured radio frames",
	Long: `Decode radio frames given as hex, one frame per argument or per line
of standard input. Spaces and colons between bytes are ignored, so frames
can be pasted straight from debug logs.`,
	Example: `  coopctl decode "01 2a 00 01 f2 5b 1c 9e"
  grep hex= coopctl.log | cut -d= -f2 | coopctl decode`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) > 0 {
			for _, a := range args {
				decodeLine(out, a)
			}
			return nil
		}

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				decodeLine(out, line)
			}
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func decodeLine(out io.Writer, line string) {
	clean := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(line)
	data, err := hex.DecodeString(clean)
	if err != nil {
		fmt.Fprintf(out, "%s\n  not hex: %v\n", line, err)
		return
	}

	fmt.Fprintln(out, protocol.Dump(data))
	if msg, err := protocol.Decode(data); err == nil {
		fmt.Fprintf(out, "  %s\n", msg)
	}
}
