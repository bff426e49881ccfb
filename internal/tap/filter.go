package tap

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"

	"firestige.xyz/lansim/internal/core"
)

const (
	acceptLen = 0xFFFF
	rejectLen = 0
)

// Header field offsets, matching the wire format.
const (
	offSrcAddr = 0
	offDstAddr = 4
	offSrcPort = 8
	offDstPort = 10
)

// condition is one parsed filter term. Each term tests one or two header
// fields against the same value; two fields means "either".
type condition struct {
	fields []field
	value  uint32
}

type field struct {
	off  uint32
	size int
}

// CompileFilter compiles a tcpdump-flavoured expression into BPF over the
// simulator header. Supported terms, joined by "and":
//
//	src A | dst A | host A | port N | src port N | dst port N
//
// An empty expression accepts every packet.
func CompileFilter(expr string) ([]bpf.Instruction, error) {
	conds, err := parseFilter(expr)
	if err != nil {
		return nil, err
	}
	return assemble(conds)
}

func parseFilter(expr string) ([]condition, error) {
	expr = strings.TrimSpace(strings.ToLower(expr))
	if expr == "" {
		return nil, nil
	}

	var conds []condition
	for _, term := range strings.Split(expr, " and ") {
		words := strings.Fields(term)
		cond, err := parseTerm(words)
		if err != nil {
			return nil, fmt.Errorf("filter term %q: %w", strings.Join(words, " "), err)
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func parseTerm(words []string) (condition, error) {
	switch {
	case len(words) == 2 && words[0] == "port":
		return portCondition(words[1], offSrcPort, offDstPort)
	case len(words) == 3 && words[1] == "port" && words[0] == "src":
		return portCondition(words[2], offSrcPort)
	case len(words) == 3 && words[1] == "port" && words[0] == "dst":
		return portCondition(words[2], offDstPort)
	case len(words) == 2 && words[0] == "host":
		return addrCondition(words[1], offSrcAddr, offDstAddr)
	case len(words) == 2 && words[0] == "src":
		return addrCondition(words[1], offSrcAddr)
	case len(words) == 2 && words[0] == "dst":
		return addrCondition(words[1], offDstAddr)
	default:
		return condition{}, fmt.Errorf("unsupported expression")
	}
}

func addrCondition(s string, offs ...uint32) (condition, error) {
	addr, err := core.ParseAddress(s)
	if err != nil {
		return condition{}, err
	}
	a4 := addr.As4()
	cond := condition{value: binary.BigEndian.Uint32(a4[:])}
	for _, off := range offs {
		cond.fields = append(cond.fields, field{off: off, size: core.AddressLen})
	}
	return cond, nil
}

func portCondition(s string, offs ...uint32) (condition, error) {
	n, err := strconv.Atoi(s)
	if err != nil || !core.ValidTransportPort(n) {
		return condition{}, fmt.Errorf("invalid port %q", s)
	}
	// BPF loads half-words in network order; header ports are little-endian.
	var le [2]byte
	binary.LittleEndian.PutUint16(le[:], uint16(n))
	cond := condition{value: uint32(binary.BigEndian.Uint16(le[:]))}
	for _, off := range offs {
		cond.fields = append(cond.fields, field{off: off, size: 2})
	}
	return cond, nil
}

// assemble lays the conditions out back to back, followed by an accept and
// a reject return. Every failed condition jumps to the reject.
func assemble(conds []condition) ([]bpf.Instruction, error) {
	var prog []bpf.Instruction
	var rejects []int

	for _, c := range conds {
		for i, f := range c.fields {
			prog = append(prog, bpf.LoadAbsolute{Off: f.off, Size: f.size})
			if i < len(c.fields)-1 {
				// Match on this field: skip the rest of the condition.
				remaining := 2*(len(c.fields)-i-1) - 1
				prog = append(prog, bpf.JumpIf{Cond: bpf.JumpEqual, Val: c.value, SkipTrue: uint8(remaining + 1)})
				continue
			}
			rejects = append(rejects, len(prog))
			prog = append(prog, bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: c.value})
		}
	}
	prog = append(prog, bpf.RetConstant{Val: acceptLen})
	reject := len(prog)
	prog = append(prog, bpf.RetConstant{Val: rejectLen})

	for _, at := range rejects {
		skip := reject - at - 1
		if skip > 255 {
			return nil, fmt.Errorf("filter too long")
		}
		jump := prog[at].(bpf.JumpIf)
		jump.SkipTrue = uint8(skip)
		prog[at] = jump
	}
	return prog, nil
}
