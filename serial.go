package keymerge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

var errInvalidScanLine = errors.New("invalid scan line")

func serialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// parseScanLine parses one line from an external matrix scanner:
// "P <row> <col>" for a press, "R <row> <col>" for a release.
func parseScanLine(line string) (row, column uint32, pressed bool, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return 0, 0, false, fmt.Errorf("%w: expected 3 fields, got %d", errInvalidScanLine, len(fields))
	}

	switch fields[0] {
	case "P":
		pressed = true
	case "R":
		pressed = false
	default:
		return 0, 0, false, fmt.Errorf("%w: unknown state %q", errInvalidScanLine, fields[0])
	}

	r, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: row: %w", errInvalidScanLine, err)
	}
	c, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: column: %w", errInvalidScanLine, err)
	}
	return uint32(r), uint32(c), pressed, nil
}

// runSerialScanner feeds scan lines read from r into handle until r fails.
func runSerialScanner(r io.Reader, handle func(row, column uint32, pressed bool) bool) error {
	scopedLogger := serialLogger.With().Str("service", "matrix_scanner").Logger()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			row, column, pressed, perr := parseScanLine(line)
			if perr != nil {
				scopedLogger.Warn().Err(perr).Str("line", strings.TrimSpace(line)).Msg("Invalid line")
			} else if !handle(row, column, pressed) {
				scopedLogger.Debug().Uint32("row", row).Uint32("col", column).Msg("Scan event not queued")
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// initSerialScanner opens the configured serial port and streams its scan
// events into the pipeline. A missing port disables serial scanning.
func initSerialScanner(ctx context.Context, p *Pipeline, cfg *Config) {
	if cfg.SerialPort == "" {
		serialLogger.Info().Msg("no serial port configured, serial scanner disabled")
		return
	}

	port, err := serial.Open(cfg.SerialPort, serialMode(cfg.SerialBaud))
	if err != nil {
		serialLogger.Error().
			Err(err).
			Str("path", cfg.SerialPort).
			Int("baud", cfg.SerialBaud).
			Msg("Error opening serial port")
		return
	}

	go func() {
		<-ctx.Done()
		_ = port.Close()
	}()

	go func() {
		if err := runSerialScanner(port, p.HandleScan); err != nil && ctx.Err() == nil {
			serialLogger.Warn().Err(err).Msg("Error reading from serial port")
		}
	}()

	serialLogger.Info().Str("path", cfg.SerialPort).Msg("serial scanner started")
}
