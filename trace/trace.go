// Package trace records machine execution as a stream of CBOR events.
// A recording is one Header followed by one Event per executed
// instruction, encoded canonically so identical runs produce identical
// bytes. The recorder plugs into the machine as a vm.Tracer and costs
// nothing when unused.
package trace

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/stackvm/vm"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Header opens a recording.
type Header struct {
	Session    string `cbor:"1,keyasint"` // unique id for this run
	ProgramLen int    `cbor:"2,keyasint"` // instruction count of the traced program
	StartedAt  int64  `cbor:"3,keyasint"` // unix milliseconds
}

// Event is one executed instruction, captured before its effects.
type Event struct {
	PC    int   `cbor:"1,keyasint"`
	Op    byte  `cbor:"2,keyasint"`
	Arg   int64 `cbor:"3,keyasint,omitempty"`
	Depth int   `cbor:"4,keyasint"` // operand stack depth before the instruction
}

// Opcode returns the event's opcode.
func (e Event) Opcode() vm.Opcode {
	return vm.Opcode(e.Op)
}

// Recorder streams a recording to a writer. It implements vm.Tracer.
type Recorder struct {
	enc     *cbor.Encoder
	session string
	err     error
}

// NewRecorder writes the recording header and returns a recorder ready
// to be installed as a machine's Tracer.
func NewRecorder(w io.Writer, programLen int) (*Recorder, error) {
	r := &Recorder{
		enc:     cborEncMode.NewEncoder(w),
		session: uuid.NewString(),
	}
	h := Header{
		Session:    r.session,
		ProgramLen: programLen,
		StartedAt:  time.Now().UnixMilli(),
	}
	if err := r.enc.Encode(&h); err != nil {
		return nil, fmt.Errorf("trace: write header: %w", err)
	}
	return r, nil
}

// Session returns the recording's session id.
func (r *Recorder) Session() string {
	return r.session
}

// Step implements vm.Tracer. The first write error sticks; subsequent
// events are dropped so a failing sink cannot abort the run.
func (r *Recorder) Step(pc int, instr vm.Instruction, depth int) {
	if r.err != nil {
		return
	}
	ev := Event{PC: pc, Op: byte(instr.Op), Arg: instr.Arg, Depth: depth}
	if err := r.enc.Encode(&ev); err != nil {
		r.err = fmt.Errorf("trace: write event: %w", err)
	}
}

// Err returns the first write error, if any. Check it after the run.
func (r *Recorder) Err() error {
	return r.err
}

// Read decodes a complete recording.
func Read(rd io.Reader) (Header, []Event, error) {
	dec := cbor.NewDecoder(rd)

	var h Header
	if err := dec.Decode(&h); err != nil {
		return Header{}, nil, fmt.Errorf("trace: read header: %w", err)
	}

	var events []Event
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Header{}, nil, fmt.Errorf("trace: read event: %w", err)
		}
		events = append(events, ev)
	}
	return h, events, nil
}
