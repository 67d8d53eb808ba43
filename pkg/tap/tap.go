package tap

import "fmt"

// State represents one of the 16 defined IEEE 1149.1 TAP controller states.
type State uint8

const (
	TestLogicReset State = iota
	RunTestIdle
	SelectDRScan
	CaptureDR
	ShiftDR
	Exit1DR
	PauseDR
	Exit2DR
	UpdateDR
	SelectIRScan
	CaptureIR
	ShiftIR
	Exit1IR
	PauseIR
	Exit2IR
	UpdateIR
	numStates
)

var stateNames = [numStates]string{
	"TestLogicReset", "RunTestIdle",
	"SelectDRScan", "CaptureDR", "ShiftDR", "Exit1DR", "PauseDR", "Exit2DR", "UpdateDR",
	"SelectIRScan", "CaptureIR", "ShiftIR", "Exit1IR", "PauseIR", "Exit2IR", "UpdateIR",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// transitions[s] holds the successor state for TMS=0 and TMS=1.
var transitions = [numStates][2]State{
	TestLogicReset: {RunTestIdle, TestLogicReset},
	RunTestIdle:    {RunTestIdle, SelectDRScan},
	SelectDRScan:   {CaptureDR, SelectIRScan},
	CaptureDR:      {ShiftDR, Exit1DR},
	ShiftDR:        {ShiftDR, Exit1DR},
	Exit1DR:        {PauseDR, UpdateDR},
	PauseDR:        {PauseDR, Exit2DR},
	Exit2DR:        {ShiftDR, UpdateDR},
	UpdateDR:       {RunTestIdle, SelectDRScan},
	SelectIRScan:   {CaptureIR, TestLogicReset},
	CaptureIR:      {ShiftIR, Exit1IR},
	ShiftIR:        {ShiftIR, Exit1IR},
	Exit1IR:        {PauseIR, UpdateIR},
	PauseIR:        {PauseIR, Exit2IR},
	Exit2IR:        {ShiftIR, UpdateIR},
	UpdateIR:       {RunTestIdle, SelectIRScan},
}

// Next returns the TAP state reached by clocking TCK once with the given TMS
// value.
func Next(current State, tms bool) State {
	if current >= numStates {
		panic(fmt.Sprintf("tap: unhandled state %d", current))
	}
	if tms {
		return transitions[current][1]
	}
	return transitions[current][0]
}

// Sequence is a TMS drive pattern, LSB first, at most 32 cycles long. It is
// the unit a bit engine's TMS-sequence primitive accepts.
type Sequence struct {
	Pattern uint32
	Cycles  int
}

// Bit reports the TMS value of cycle i.
func (s Sequence) Bit(i int) bool {
	return s.Pattern&(1<<uint(i)) != 0
}

func (s Sequence) String() string {
	return fmt.Sprintf("tms[%d]=%0*b", s.Cycles, s.Cycles, s.Pattern)
}

// Machine tracks the TAP controller state locally. It performs no I/O; it
// produces the TMS sequences a bit engine must be fed to move the hardware
// in lock step.
type Machine struct {
	state State
}

// NewMachine returns a machine initialized to Test-Logic-Reset.
func NewMachine() *Machine {
	return &Machine{state: TestLogicReset}
}

// State reports the current tracked TAP state.
func (m *Machine) State() State {
	return m.state
}

// Clock advances the machine one TCK cycle.
func (m *Machine) Clock(tms bool) State {
	m.state = Next(m.state, tms)
	return m.state
}

// Reset returns the soft-reset sequence: five TMS=1 cycles to force
// Test-Logic-Reset from anywhere, plus one TMS=0 cycle into Run-Test/Idle.
func (m *Machine) Reset() Sequence {
	seq := Sequence{Pattern: 0x1f, Cycles: 6}
	m.apply(seq)
	return seq
}

// MoveTo computes the shortest TMS sequence from the current state to the
// target and advances the machine along it.
func (m *Machine) MoveTo(target State) (Sequence, error) {
	seq, err := Path(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	m.apply(seq)
	return seq, nil
}

func (m *Machine) apply(seq Sequence) {
	for i := 0; i < seq.Cycles; i++ {
		m.Clock(seq.Bit(i))
	}
}

// Path finds the shortest TMS sequence between two states by breadth-first
// search over the state diagram. The diagram's diameter is well under 32, so
// the result always fits a single Sequence.
func Path(from, to State) (Sequence, error) {
	if from >= numStates || to >= numStates {
		return Sequence{}, fmt.Errorf("tap: invalid state pair %d -> %d", from, to)
	}
	if from == to {
		return Sequence{}, nil
	}

	type node struct {
		state State
		seq   Sequence
	}
	queue := []node{{state: from}}
	visited := [numStates]bool{}
	visited[from] = true

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, tms := range [2]bool{false, true} {
			next := Next(cur.state, tms)
			if visited[next] {
				continue
			}
			seq := cur.seq
			if tms {
				seq.Pattern |= 1 << uint(seq.Cycles)
			}
			seq.Cycles++
			if next == to {
				return seq, nil
			}
			visited[next] = true
			queue = append(queue, node{state: next, seq: seq})
		}
	}
	return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
}
