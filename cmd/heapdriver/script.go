package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmgr/heap"
	"gopkg.in/yaml.v3"
)

// Step is one call against the heap. Exactly one of Allocate and Release must be set.
type Step struct {
	// Allocate names the pointer returned by allocating Size bytes
	Allocate string `yaml:"allocate,omitempty"`
	Size     uint32 `yaml:"size,omitempty"`
	// Release names a pointer allocated by an earlier step
	Release string `yaml:"release,omitempty"`
}

// Script is a sequence of steps replayed against a single heap
type Script struct {
	Steps []Step `yaml:"steps"`
}

// ReferenceScript returns the fixed allocate/release sequence used by the reference command
func ReferenceScript() *Script {
	return &Script{Steps: []Step{
		{Allocate: "p1", Size: 100},
		{Allocate: "p2", Size: 200},
		{Allocate: "p3", Size: 100},
		{Release: "p2"},
		{Allocate: "p4", Size: 50},
		{Allocate: "p5", Size: 50},
		{Release: "p3"},
		{Release: "p1"},
		{Release: "p4"},
		{Release: "p5"},
		{Allocate: "p6", Size: 400},
		{Release: "p6"},
	}}
}

func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read script %s", path)
	}

	script, err := ParseScript(data)
	if err != nil {
		return nil, errors.Wrapf(err, "script %s", path)
	}
	return script, nil
}

func ParseScript(data []byte) (*Script, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, errors.Wrap(err, "failed to parse script")
	}

	for i, step := range script.Steps {
		if (step.Allocate == "") == (step.Release == "") {
			return nil, errors.Newf("step %d must set exactly one of allocate and release", i+1)
		}
		if step.Release != "" && step.Size != 0 {
			return nil, errors.Newf("step %d releases %s but also sets a size", i+1, step.Release)
		}
	}

	return &script, nil
}

// Run replays the script against h, writing one line per step to out. It returns the pointers
// that were still allocated when the script ended.
func (s *Script) Run(h *heap.Heap, out io.Writer) (map[string]heap.Pointer, error) {
	live := make(map[string]heap.Pointer)

	for i, step := range s.Steps {
		if step.Allocate != "" {
			if _, exists := live[step.Allocate]; exists {
				return live, errors.Newf("step %d allocates %s, which is still allocated", i+1, step.Allocate)
			}

			p, err := h.Allocate(step.Size)
			if err != nil {
				return live, errors.Wrapf(err, "step %d", i+1)
			}

			live[step.Allocate] = p
			fmt.Fprintf(out, "allocate %s %d -> %#x\n", step.Allocate, step.Size, uint32(p))
			continue
		}

		p, exists := live[step.Release]
		if !exists {
			return live, errors.Newf("step %d releases %s, which is not allocated", i+1, step.Release)
		}

		if err := h.Release(p); err != nil {
			return live, errors.Wrapf(err, "step %d", i+1)
		}

		delete(live, step.Release)
		fmt.Fprintf(out, "release %s %#x\n", step.Release, uint32(p))
	}

	fmt.Fprintf(out, "cursor %#x\n", uint32(h.Cursor()))

	return live, nil
}
