// Package asm assembles flockvm's textual instruction listings into
// bytecode images. Grounded on original_source/flock_asm (parser.rs's
// statement grammar: comments, empty lines, label definitions, zero- and
// one-argument commands), generalized from that assembler's three
// opcodes to the full instruction set of bytecode.Op and from
// single-value arguments to the comma-separated operand lists JMP, BURY,
// STORE_REL and friends need. Label resolution (turning a label name
// used as a jump target into its instruction index) was parsed but never
// wired up in the original; this implementation wires it.
//
// Line-oriented tokenizing is done with bufio/strings rather than a
// parser-combinator library: no repo in the corpus imports one (the
// original's nom combinators have no idiomatic Go counterpart among the
// teacher's or pack's dependencies), and the grammar is small enough that
// reaching for one would be an unjustified dependency rather than a
// faithful port.
package asm

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"flock/bytecode"
)

// Assemble parses source and returns the resulting bytecode image.
func Assemble(source string) (*bytecode.Image, error) {
	lines, err := tokenize(source)
	if err != nil {
		return nil, err
	}

	labels := map[string]uint64{}
	var index uint64
	for _, ln := range lines {
		if ln.label != "" {
			if _, exists := labels[ln.label]; exists {
				return nil, fmt.Errorf("asm: line %d: label %q redefined", ln.num, ln.label)
			}
			labels[ln.label] = index
			continue
		}
		if ln.command != "" {
			index++
		}
	}

	instrs := make([]bytecode.Instruction, 0, index)
	for _, ln := range lines {
		if ln.command == "" {
			continue
		}
		ins, err := assembleInstruction(ln, labels)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, ins)
	}

	return bytecode.NewImage(instrs), nil
}

type line struct {
	num     int
	label   string
	command string
	args    []string
}

func tokenize(source string) ([]line, error) {
	var lines []line
	scanner := bufio.NewScanner(strings.NewReader(source))
	num := 0
	for scanner.Scan() {
		num++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if strings.HasSuffix(raw, ":") && !strings.ContainsAny(raw, " \t") {
			lines = append(lines, line{num: num, label: strings.TrimSuffix(raw, ":")})
			continue
		}

		fields := strings.SplitN(raw, " ", 2)
		command := fields[0]
		var args []string
		if len(fields) == 2 {
			for _, a := range strings.Split(fields[1], ",") {
				args = append(args, strings.TrimSpace(a))
			}
		}
		lines = append(lines, line{num: num, command: command, args: args})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("asm: scan source: %w", err)
	}
	return lines, nil
}

func assembleInstruction(ln line, labels map[string]uint64) (bytecode.Instruction, error) {
	switch ln.command {
	case "PUSH":
		v, err := arg(ln, 0)
		if err != nil {
			return bytecode.Instruction{}, err
		}
		return bytecode.Instruction{Op: bytecode.OP_PUSH, Value: v}, nil

	case "ADD":
		return bytecode.Instruction{Op: bytecode.OP_ADD}, nil
	case "DUP":
		return bytecode.Instruction{Op: bytecode.OP_DUP}, nil
	case "POP":
		return bytecode.Instruction{Op: bytecode.OP_POP}, nil

	case "BURY":
		v, err := arg(ln, 0)
		if err != nil {
			return bytecode.Instruction{}, err
		}
		return bytecode.Instruction{Op: bytecode.OP_BURY, Index: int(v)}, nil

	case "DREDGE":
		v, err := arg(ln, 0)
		if err != nil {
			return bytecode.Instruction{}, err
		}
		return bytecode.Instruction{Op: bytecode.OP_DREDGE, Index: int(v)}, nil

	case "JMP":
		return assembleJump(ln, labels)

	case "JSR":
		if len(ln.args) == 0 {
			return bytecode.Instruction{Op: bytecode.OP_JSR}, nil
		}
		target, err := resolveTarget(ln, ln.args[0], labels)
		if err != nil {
			return bytecode.Instruction{}, err
		}
		return bytecode.Instruction{Op: bytecode.OP_JSR, Target: target}, nil

	case "RET":
		return bytecode.Instruction{Op: bytecode.OP_RET}, nil
	case "FORK":
		return bytecode.Instruction{Op: bytecode.OP_FORK}, nil

	case "JOIN":
		v, err := arg(ln, 0)
		if err != nil {
			return bytecode.Instruction{}, err
		}
		return bytecode.Instruction{Op: bytecode.OP_JOIN, Count: int(v)}, nil

	case "STORE":
		v, err := arg(ln, 0)
		if err != nil {
			return bytecode.Instruction{}, err
		}
		return bytecode.Instruction{Op: bytecode.OP_STORE, Addr: uint64(v)}, nil

	case "LOAD":
		v, err := arg(ln, 0)
		if err != nil {
			return bytecode.Instruction{}, err
		}
		return bytecode.Instruction{Op: bytecode.OP_LOAD, Addr: uint64(v)}, nil

	case "STORE_REL":
		v, err := arg(ln, 0)
		if err != nil {
			return bytecode.Instruction{}, err
		}
		return bytecode.Instruction{Op: bytecode.OP_STORE_REL, Offset: v}, nil

	case "LOAD_REL":
		v, err := arg(ln, 0)
		if err != nil {
			return bytecode.Instruction{}, err
		}
		return bytecode.Instruction{Op: bytecode.OP_LOAD_REL, Offset: v}, nil

	case "HALT":
		return bytecode.Instruction{Op: bytecode.OP_HALT}, nil
	case "PANIC":
		return bytecode.Instruction{Op: bytecode.OP_PANIC}, nil
	case "DUMP_DEBUG":
		return bytecode.Instruction{Op: bytecode.OP_DUMP_DEBUG}, nil

	default:
		return bytecode.Instruction{}, fmt.Errorf("asm: line %d: unrecognized instruction %q", ln.num, ln.command)
	}
}

// assembleJump handles JMP's two forms: "JMP target" (unconditional) and
// "JMP FLAGS, target" where FLAGS is "ZERO", "FORK", or "ZERO|FORK".
func assembleJump(ln line, labels map[string]uint64) (bytecode.Instruction, error) {
	if len(ln.args) == 0 {
		return bytecode.Instruction{}, fmt.Errorf("asm: line %d: JMP requires a target", ln.num)
	}
	if len(ln.args) == 1 {
		target, err := resolveTarget(ln, ln.args[0], labels)
		if err != nil {
			return bytecode.Instruction{}, err
		}
		return bytecode.Instruction{Op: bytecode.OP_JMP, Target: target}, nil
	}

	flags, err := parseFlags(ln, ln.args[0])
	if err != nil {
		return bytecode.Instruction{}, err
	}
	target, err := resolveTarget(ln, ln.args[1], labels)
	if err != nil {
		return bytecode.Instruction{}, err
	}
	return bytecode.Instruction{Op: bytecode.OP_JMP, Flags: flags, Target: target}, nil
}

func parseFlags(ln line, s string) (bytecode.ConditionFlags, error) {
	var flags bytecode.ConditionFlags
	for _, part := range strings.Split(s, "|") {
		switch strings.TrimSpace(part) {
		case "ZERO":
			flags |= bytecode.FlagZero
		case "FORK":
			flags |= bytecode.FlagFork
		default:
			return 0, fmt.Errorf("asm: line %d: unrecognized JMP flag %q", ln.num, part)
		}
	}
	return flags, nil
}

// resolveTarget resolves a jump/call operand: a bare "*" means "pop the
// target from the stack at runtime" (Target == nil); a label name
// resolves to its instruction index; anything else must parse as a
// decimal instruction index.
func resolveTarget(ln line, s string, labels map[string]uint64) (*uint64, error) {
	if s == "*" {
		return nil, nil
	}
	if idx, ok := labels[s]; ok {
		return &idx, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("asm: line %d: %q is neither a known label nor a number", ln.num, s)
	}
	return &n, nil
}

func arg(ln line, i int) (int64, error) {
	if i >= len(ln.args) {
		return 0, fmt.Errorf("asm: line %d: %s requires an argument", ln.num, ln.command)
	}
	n, err := strconv.ParseInt(ln.args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: invalid operand %q for %s: %w", ln.num, ln.args[i], ln.command, err)
	}
	return n, nil
}
