// Command fmqdemo exercises a Synchronized queue end to end: one side
// creates it and serializes a descriptor, the other deserializes it and
// attaches, and the two exchange a batch of fixed-size records using the
// blocking API. It stands in for two separate processes exchanging a
// descriptor over an RPC call — here the "RPC" is just passing the
// serialized bytes and handles along within main, since the handles
// themselves (memfd file descriptors) are already valid in both
// goroutines of a single process.
//
// Grounded on the teacher's experiments/pingpong_queue/go/main.go, with
// the cgo shm_open/mmap pair replaced by this module's memfd-backed
// Allocator and the raw RingBuffer replaced by MessageQueue[Sample].
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/ADVAN-ELAA-8QM-PRC1/platform-system-libfmq"
)

// Sample is the fixed-size record exchanged across the queue. It has no
// pointers or padding worth mentioning, only the two int64 operands and
// their sum, mirroring the teacher's Message struct.
type Sample struct {
	ID  uint32
	_   uint32 // align A to 8 bytes
	A   int64
	B   int64
	Sum int64
}

func main() {
	alloc := fmq.DefaultAllocator()

	writer, err := fmq.Create[Sample](fmq.Config{
		Flavor:       fmq.Synchronized,
		QuantumCount: 64,
		EventFlag:    true,
	}, alloc)
	if err != nil {
		log.Fatalf("create: %v", err)
	}
	defer writer.Close()

	wire, err := writer.GetDescriptor().Serialize()
	if err != nil {
		log.Fatalf("serialize: %v", err)
	}
	handles := writer.DescriptorHandles()

	desc, err := fmq.DeserializeGrantorDescriptor(wire, len(handles))
	if err != nil {
		log.Fatalf("deserialize: %v", err)
	}
	reader, err := fmq.Attach[Sample](desc, handles, fmq.Config{
		Flavor:       fmq.Synchronized,
		QuantumCount: 64,
		EventFlag:    true,
	}, alloc)
	if err != nil {
		log.Fatalf("attach: %v", err)
	}
	defer reader.Close()

	const rounds = 10
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := uint32(0); i < rounds; i++ {
			out := make([]Sample, 1)
			if !reader.ReadBlocking(out, 2*time.Second) {
				log.Printf("read %d timed out", i)
				return
			}
			fmt.Printf("read id=%d sum=%d\n", out[0].ID, out[0].Sum)
		}
	}()

	for i := uint32(0); i < rounds; i++ {
		msg := []Sample{{ID: i, A: int64(i), B: int64(i * 2), Sum: int64(i) + int64(i*2)}}
		if !writer.WriteBlocking(msg, 2*time.Second) {
			log.Fatalf("write %d timed out", i)
		}
	}

	<-done
}
