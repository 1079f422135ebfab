package main

import (
	"bytes"
	"context"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/sarchlab/diibridge/config"
	"github.com/sarchlab/diibridge/loader"
	"github.com/sarchlab/diibridge/rvfi"
	"github.com/sarchlab/diibridge/transport"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Run an RV32 ELF program or a raw DII packet file without a test generator.",
	Long: `replay feeds the code of an RV32 ELF executable, or a file of ` +
		`8-byte DII instruction packets, through the bridge and prints the ` +
		`execution trace.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}

		log := newLogger(cfg.Verbosity)

		packets, err := readTrace(args[0])
		if err != nil {
			return err
		}

		records, err := replay(cmd.Context(), packets, cfg, log)
		if err != nil {
			return err
		}

		return printTrace(cmd.OutOrStdout(), records)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

// readTrace turns a file into instruction packets. ELF files contribute
// their code from the entry point; anything else is read as raw packets.
// A reset marker is appended when the input does not end with one.
func readTrace(path string) ([]rvfi.InstructionPacket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var packets []rvfi.InstructionPacket

	if bytes.HasPrefix(data, []byte(elf.ELFMAG)) {
		prog, err := loader.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}

		text, err := prog.Text()
		if err != nil {
			return nil, err
		}

		for _, insn := range text {
			packets = append(packets, rvfi.NewInstruction(insn))
		}
	} else {
		n := rvfi.InstructionPacketSize
		if len(data)%n != 0 {
			return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d",
				rvfi.ErrShortPacket, len(data), n)
		}

		for off := 0; off < len(data); off += n {
			p, err := rvfi.DecodeInstruction(data[off : off+n])
			if err != nil {
				return nil, err
			}

			packets = append(packets, p)
		}
	}

	if len(packets) == 0 || !packets[len(packets)-1].IsReset() {
		packets = append(packets, rvfi.NewResetMarker())
	}

	return packets, nil
}

// replay runs packets through a bridge on an in-process connection and
// returns every execution packet it sent back.
func replay(
	ctx context.Context,
	packets []rvfi.InstructionPacket,
	cfg *config.Config,
	log logr.Logger,
) ([]rvfi.ExecutionPacket, error) {
	conn := transport.NewMemConn()
	for _, p := range packets {
		conn.Feed(rvfi.EncodeInstruction(p))
	}

	s, err := newSession(conn, cfg, log, nil)
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		defer func() {
			if err := s.recorder.Close(); err != nil {
				log.Error(err, "failed to close recorder")
			}
		}()
	}

	for conn.Pending() > 0 {
		if err := s.bridge.ReceiveTrace(ctx); err != nil {
			return nil, err
		}

		if err := s.bridge.Run(ctx); err != nil {
			return nil, err
		}
	}

	return rvfi.DecodeExecutionStream(conn.Sent())
}

func printTrace(w io.Writer, records []rvfi.ExecutionPacket) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ORDER\tPC\tINSN\tRD\tRD_WDATA\tMEM_ADDR\tFLAGS")

	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%#x\t%#08x\tx%d\t%#x\t%#x\t%s\n",
			r.Order, r.PCRData, r.Insn, r.RDAddr, r.RDWData, r.MemAddr, statusFlags(r))
	}

	return tw.Flush()
}

func statusFlags(r rvfi.ExecutionPacket) string {
	var s string

	if r.Trap != 0 {
		s += "T"
	}

	if r.Intr != 0 {
		s += "I"
	}

	if r.Halt != 0 {
		s += "H"
	}

	if s == "" {
		return "-"
	}

	return s
}
