package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/diibridge/dut"
	"github.com/sarchlab/diibridge/pipeline"
	"github.com/sarchlab/diibridge/rvfi"
)

const nop = uint32(0x00000013)

var _ = Describe("Tracker", func() {
	var t *pipeline.Tracker

	push := func(n int) {
		for i := 0; i < n; i++ {
			t.Push(rvfi.NewInstruction(nop + uint32(i)<<20))
		}
	}

	// feed grants n fetches, one per cycle, and returns the instructions fed.
	feed := func(n int) []rvfi.InstructionPacket {
		var fed []rvfi.InstructionPacket
		for i := 0; i < n; i++ {
			t.Observe(dut.Requests{InstrGnt: true})
			d := t.Next()
			Expect(d.Fetch).To(BeTrue())
			fed = append(fed, d.Insn)
		}

		return fed
	}

	checkInvariant := func() {
		c := t.Counters()
		Expect(c.Out).To(BeNumerically(">=", 0))
		Expect(c.Out).To(BeNumerically("<=", c.In))
		Expect(c.In).To(BeNumerically("<=", c.Received))
	}

	BeforeEach(func() {
		t = pipeline.NewTracker(pipeline.WithLogger(GinkgoLogr))
	})

	AfterEach(func() {
		checkInvariant()
	})

	It("should start idle with zero counters", func() {
		Expect(t.State()).To(Equal(pipeline.StateIdle))
		Expect(t.Counters()).To(Equal(pipeline.Counters{}))
	})

	It("should count received packets", func() {
		push(3)

		Expect(t.Counters().Received).To(Equal(3))
		Expect(t.State()).To(Equal(pipeline.StateFeeding))
	})

	Describe("Fetch service", func() {
		It("should not present anything without a grant", func() {
			push(1)
			t.Observe(dut.Requests{})

			d := t.Next()

			Expect(d.Fetch).To(BeFalse())
			Expect(t.Counters().In).To(BeZero())
		})

		It("should present instructions in receipt order", func() {
			push(3)

			fed := feed(3)

			Expect(fed[0].Insn).To(Equal(nop))
			Expect(fed[1].Insn).To(Equal(nop + 1<<20))
			Expect(fed[2].Insn).To(Equal(nop + 2<<20))
			Expect(t.Counters().In).To(Equal(3))
			Expect(t.State()).To(Equal(pipeline.StateDraining))
		})

		It("should report underflow and keep the grant pending", func() {
			push(1)
			feed(1)

			t.Observe(dut.Requests{InstrGnt: true})
			d := t.Next()

			Expect(d.Underflow).To(BeTrue())
			Expect(d.Fetch).To(BeFalse())
			Expect(t.FetchPending()).To(BeTrue())

			push(1)
			d = t.Next()

			Expect(d.Fetch).To(BeTrue())
			Expect(d.Insn.Insn).To(Equal(nop + 1<<20))
			Expect(t.FetchPending()).To(BeFalse())
		})

		It("should never present the reset marker", func() {
			push(1)
			t.Push(rvfi.NewResetMarker())
			feed(1)

			t.Observe(dut.Requests{InstrGnt: true})
			d := t.Next()

			Expect(d.Fetch).To(BeFalse())
			Expect(d.Stall).To(BeTrue())
			Expect(d.Underflow).To(BeFalse())
			Expect(t.Counters().In).To(Equal(1))
		})
	})

	Describe("Rollback", func() {
		BeforeEach(func() {
			push(6)
			feed(4)
		})

		It("should rewind to the trapped instruction", func() {
			r := t.Observe(dut.Requests{Retired: true, Trap: true})

			Expect(r).To(Equal(pipeline.RollbackTrap))
			Expect(t.Counters().Out).To(Equal(1))
			Expect(t.Counters().In).To(Equal(t.Counters().Out))
		})

		It("should keep one instruction in flight after a branch", func() {
			t.Observe(dut.Requests{Retired: true})
			r := t.Observe(dut.Requests{TakenBranch: true})

			Expect(r).To(Equal(pipeline.RollbackBranch))
			Expect(t.Counters().In).To(Equal(t.Counters().Out + 1))
		})

		It("should treat a jump like a taken branch", func() {
			r := t.Observe(dut.Requests{Jump: true})

			Expect(r).To(Equal(pipeline.RollbackBranch))
			Expect(t.Counters().In).To(Equal(1))
		})

		It("should give a trap precedence over a branch", func() {
			r := t.Observe(dut.Requests{Retired: true, Trap: true, Jump: true})

			Expect(r).To(Equal(pipeline.RollbackTrap))
			Expect(t.Counters().In).To(Equal(t.Counters().Out))
		})

		It("should replay the discarded instructions", func() {
			t.Observe(dut.Requests{Retired: true})
			t.Observe(dut.Requests{Jump: true})

			fed := feed(1)

			Expect(fed[0].Insn).To(Equal(nop + 2<<20))
		})

		It("should count rollbacks", func() {
			t.Observe(dut.Requests{Retired: true, Trap: true})
			t.Observe(dut.Requests{Jump: true})

			Expect(t.Stats().TrapRollbacks).To(Equal(uint64(1)))
			Expect(t.Stats().BranchRollbacks).To(Equal(uint64(1)))
		})
	})

	Describe("Data service", func() {
		It("should service a request one cycle after the grant", func() {
			t.Observe(dut.Requests{
				DataGnt:   true,
				DataAddr:  0x80000010,
				DataWData: 0xAABBCCDD,
				DataBE:    0x3,
				DataWE:    true,
			})

			d := t.Next()

			Expect(d.Mem).To(BeTrue())
			Expect(d.MemRequest).To(Equal(pipeline.MemRequest{
				Addr: 0x80000010, WData: 0xAABBCCDD, BE: 0x3, Write: true,
			}))

			t.Observe(dut.Requests{})
			Expect(t.Next().Mem).To(BeFalse())
		})

		It("should hold the request across an underflow", func() {
			push(1)
			feed(1)
			t.Observe(dut.Requests{InstrGnt: true, DataGnt: true, DataAddr: 4})

			Expect(t.Next().Underflow).To(BeTrue())

			push(1)
			d := t.Next()
			Expect(d.Fetch).To(BeTrue())
			Expect(d.Mem).To(BeTrue())
			Expect(d.MemRequest.Addr).To(Equal(uint64(4)))
		})
	})

	Describe("Reset trigger", func() {
		It("should fire once the pipeline drained to the marker", func() {
			push(1)
			t.Push(rvfi.NewResetMarker())
			feed(1)

			Expect(t.Next().Reset).To(BeFalse())

			t.Observe(dut.Requests{Retired: true})
			d := t.Next()

			Expect(d.Reset).To(BeTrue())
			Expect(t.State()).To(Equal(pipeline.StateResetting))
		})

		It("should fire immediately for a lone marker", func() {
			t.Push(rvfi.NewResetMarker())

			Expect(t.Next().Reset).To(BeTrue())
		})

		It("should not fire while instructions are in flight", func() {
			push(2)
			t.Push(rvfi.NewResetMarker())
			feed(2)
			t.Observe(dut.Requests{Retired: true})

			Expect(t.Next().Reset).To(BeFalse())
		})

		It("should clear everything on reset", func() {
			push(3)
			t.Push(rvfi.NewResetMarker())
			feed(2)
			t.Observe(dut.Requests{InstrGnt: true, DataGnt: true})

			t.Reset()

			Expect(t.Counters()).To(Equal(pipeline.Counters{}))
			Expect(t.Queue().Len()).To(BeZero())
			Expect(t.FetchPending()).To(BeFalse())
			Expect(t.State()).To(Equal(pipeline.StateIdle))
			Expect(t.Next()).To(Equal(pipeline.Decision{}))
		})
	})
})
