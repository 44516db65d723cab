package pipeline

import "strings"

// Pipeline is an ordered chain of processors wired output-to-input. The
// output contract of stage i must be a subset of what stage i+1 accepts,
// except universal control and system frames, which every stage forwards
// regardless of position.
//
// A Pipeline only describes the graph; execution belongs to a [Task]. One
// pipeline instance must not be shared between tasks.
type Pipeline struct {
	stages []Processor
}

// New creates a pipeline from the given stages, in order from input transport
// to output transport.
func New(stages ...Processor) *Pipeline {
	s := make([]Processor, len(stages))
	copy(s, stages)
	return &Pipeline{stages: s}
}

// Stages returns the processor chain in order.
func (p *Pipeline) Stages() []Processor {
	s := make([]Processor, len(p.stages))
	copy(s, p.stages)
	return s
}

// String lists the stage names joined by " -> ", for logs.
func (p *Pipeline) String() string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return strings.Join(names, " -> ")
}
