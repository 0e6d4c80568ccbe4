package main

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/robvanmieghem/go-opencl/cl"
)

// clRunner is the OpenCL implementation of kernelRunner. Each runner owns a
// full context/queue/program/kernel/buffer stack for one device; nothing here
// is shared between goroutines.
type clRunner struct {
	entry      *clDeviceEntry
	vectorSize int
	worksize   int

	ctx     *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	mine    *cl.Kernel

	addressBuf  *cl.MemObject
	blockBuf    *cl.MemObject
	prefixBuf   *cl.MemObject
	solutionBuf *cl.MemObject
}

// buildOptions assembles the compiler flags for the configured vector width,
// enabling the AMD bitalign rotate when the device extensions advertise it.
func buildOptions(extensions string, vectorSize int) string {
	opts := fmt.Sprintf("-DVECSIZE=%d", vectorSize)
	switch vectorSize {
	case 2:
		opts += " -DVEC2"
	case 4:
		opts += " -DVEC4"
	}
	if strings.Contains(extensions, "cl_amd_media_ops") {
		opts += " -DBITALIGN"
	}
	return opts
}

// defaultWorksize multiplies the device's maximum work-item sizes.
func defaultWorksize(device *cl.Device) int {
	size := 1
	for _, dim := range device.MaxWorkItemSizes() {
		if dim > 0 {
			size *= dim
		}
	}
	return size
}

// newCLRunner compiles the mining program for a device and allocates its
// buffer set. The address and prefix never change for a process lifetime, so
// they are written once here.
func newCLRunner(entry *clDeviceEntry, address [addressLen]byte, prefix [prefixLen]byte, vectorSize, worksize int) (*clRunner, error) {
	if worksize <= 0 {
		worksize = defaultWorksize(entry.device)
	}

	r := &clRunner{entry: entry, vectorSize: vectorSize, worksize: worksize}

	var err error
	if r.ctx, err = cl.CreateContext([]*cl.Device{entry.device}); err != nil {
		return nil, fmt.Errorf("create context for %s: %w", entry.name(), err)
	}
	if r.queue, err = r.ctx.CreateCommandQueue(entry.device, 0); err != nil {
		r.release()
		return nil, fmt.Errorf("create command queue for %s: %w", entry.name(), err)
	}
	if r.program, err = r.ctx.CreateProgramWithSource([]string{kernelSource}); err != nil {
		r.release()
		return nil, fmt.Errorf("create program for %s: %w", entry.name(), err)
	}
	// A failed build returns the full compiler log in the error.
	if err = r.program.BuildProgram([]*cl.Device{entry.device}, buildOptions(entry.device.Extensions(), vectorSize)); err != nil {
		r.release()
		return nil, fmt.Errorf("build kernel for %s: %w", entry.name(), err)
	}
	if r.mine, err = r.program.CreateKernel("krist_miner"); err != nil {
		r.release()
		return nil, fmt.Errorf("create kernel for %s: %w", entry.name(), err)
	}

	if r.addressBuf, err = r.ctx.CreateEmptyBuffer(cl.MemReadOnly, addressLen); err == nil {
		if r.blockBuf, err = r.ctx.CreateEmptyBuffer(cl.MemReadOnly, shortHashLen); err == nil {
			if r.prefixBuf, err = r.ctx.CreateEmptyBuffer(cl.MemReadOnly, prefixLen); err == nil {
				r.solutionBuf, err = r.ctx.CreateEmptyBuffer(cl.MemReadWrite, solutionLen)
			}
		}
	}
	if err != nil {
		r.release()
		return nil, fmt.Errorf("allocate buffers for %s: %w", entry.name(), err)
	}

	if _, err = r.queue.EnqueueWriteBufferByte(r.addressBuf, true, 0, address[:], nil); err != nil {
		r.release()
		return nil, fmt.Errorf("write address buffer for %s: %w", entry.name(), err)
	}
	if _, err = r.queue.EnqueueWriteBufferByte(r.prefixBuf, true, 0, prefix[:], nil); err != nil {
		r.release()
		return nil, fmt.Errorf("write prefix buffer for %s: %w", entry.name(), err)
	}

	if err = r.mine.SetArgBuffer(0, r.addressBuf); err == nil {
		if err = r.mine.SetArgBuffer(1, r.blockBuf); err == nil {
			if err = r.mine.SetArgBuffer(2, r.prefixBuf); err == nil {
				err = r.mine.SetArgBuffer(5, r.solutionBuf)
			}
		}
	}
	if err != nil {
		r.release()
		return nil, fmt.Errorf("set kernel args for %s: %w", entry.name(), err)
	}

	return r, nil
}

func (r *clRunner) prepare(t target) error {
	if _, err := r.queue.EnqueueWriteBufferByte(r.blockBuf, true, 0, t.prevBlock[:], nil); err != nil {
		return fmt.Errorf("write block buffer: %w", err)
	}
	work := int64(t.work)
	if err := r.mine.SetArgUnsafe(4, 8, unsafe.Pointer(&work)); err != nil {
		return fmt.Errorf("set work arg: %w", err)
	}
	return nil
}

func (r *clRunner) runBatch(offset uint64) ([solutionLen]byte, bool, error) {
	var sol [solutionLen]byte

	if _, err := r.queue.EnqueueWriteBufferByte(r.solutionBuf, false, 0, sol[:], nil); err != nil {
		return sol, false, fmt.Errorf("zero solution buffer: %w", err)
	}
	off := int64(offset)
	if err := r.mine.SetArgUnsafe(3, 8, unsafe.Pointer(&off)); err != nil {
		return sol, false, fmt.Errorf("set offset arg: %w", err)
	}
	if _, err := r.queue.EnqueueNDRangeKernel(r.mine, nil, []int{r.worksize}, nil, nil); err != nil {
		return sol, false, fmt.Errorf("enqueue kernel: %w", err)
	}
	if _, err := r.queue.EnqueueReadBufferByte(r.solutionBuf, true, 0, sol[:], nil); err != nil {
		return sol, false, fmt.Errorf("read solution buffer: %w", err)
	}

	return sol, sol[0] != 0, nil
}

func (r *clRunner) batchSize() uint64 {
	return uint64(r.worksize) * uint64(r.vectorSize)
}

// release frees the OpenCL stack in reverse construction order. Safe to call
// on a partially constructed runner.
func (r *clRunner) release() {
	for _, buf := range []*cl.MemObject{r.solutionBuf, r.prefixBuf, r.blockBuf, r.addressBuf} {
		if buf != nil {
			buf.Release()
		}
	}
	r.solutionBuf, r.prefixBuf, r.blockBuf, r.addressBuf = nil, nil, nil, nil
	if r.mine != nil {
		r.mine.Release()
		r.mine = nil
	}
	if r.program != nil {
		r.program.Release()
		r.program = nil
	}
	if r.queue != nil {
		r.queue.Release()
		r.queue = nil
	}
	if r.ctx != nil {
		r.ctx.Release()
		r.ctx = nil
	}
}
