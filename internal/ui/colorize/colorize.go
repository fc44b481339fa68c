package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// assemblyLexer is the one lexer Instruction tokenises with: "armasm" is
// Chroma's AArch64/ARM mnemonic grammar, the only one arm64asm.Inst output
// needs. If a future Chroma release drops it, Instruction degrades to
// plain text rather than reaching for an unrelated lexer.
func assemblyLexer() chroma.Lexer {
	return lexers.Get("armasm")
}

// terminalFormatter returns the terminal16m (true color) formatter,
// falling back to terminal256 and then Chroma's plain fallback only when a
// formatter is not registered. It does not detect the terminal's color
// support.
func terminalFormatter() chroma.Formatter {
	if f := formatters.Get("terminal16m"); f != nil {
		return f
	}
	if f := formatters.Get("terminal256"); f != nil {
		return f
	}
	return formatters.Fallback
}

// IsDisabled returns true if colors are disabled via environment
func IsDisabled() bool {
	return os.Getenv("PLTGOTCTL_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

// Instruction colorizes a decoded AArch64 instruction using the armasm
// lexer and the disasm-dark style registered in style.go.
func Instruction(insn string) string {
	if IsDisabled() {
		return insn
	}

	lexer := assemblyLexer()
	if lexer == nil {
		return insn
	}

	style := styles.Get("disasm-dark")
	if style == nil {
		style = styles.Fallback
	}
	formatter := terminalFormatter()

	iterator, err := lexer.Tokenise(nil, insn)
	if err != nil {
		return insn
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return insn
	}

	return strings.TrimSuffix(buf.String(), "\n")
}

// Address formats an address in yellow
func Address(addr uint64) string {
	if IsDisabled() {
		return fmt.Sprintf("%08X", addr)
	}
	return fmt.Sprintf("\033[38;2;255;200;0m%08X\033[0m", addr)
}

// Detail formats detail text in light gray
func Detail(detail string) string {
	if IsDisabled() {
		return detail
	}
	return fmt.Sprintf("\033[38;2;180;180;180m%s\033[0m", detail)
}

// HexBytes formats the raw opcode bytes preceding a disassembled
// instruction, in light gray — the disasm column that shows what was
// actually read from memory at that address, next to the decoded mnemonic Instruction
// produces from it.
func HexBytes(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;180;180;180m%s\033[0m", s)
}
