package dut_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/diibridge/dut"
)

type edgeRecorder struct {
	edges []dut.ClockEdge
}

func (r *edgeRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos != dut.HookPosClockEdge {
		return
	}

	r.edges = append(r.edges, ctx.Item.(dut.ClockEdge))
}

var _ = Describe("Adapter", func() {
	var (
		mockCtrl *gomock.Controller
		model    *MockModel
		adapter  *dut.Adapter
		clkTrace []uint64
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		model = NewMockModel(mockCtrl)
		adapter = dut.NewAdapter(model,
			dut.WithFreq(1*sim.GHz),
			dut.WithLogger(GinkgoLogr))

		clkTrace = nil
		model.EXPECT().SetInput(gomock.Any(), gomock.Any()).
			Do(func(port dut.Port, value uint64) {
				if port == dut.Clk {
					clkTrace = append(clkTrace, value)
				}
			}).AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should remember driven inputs", func() {
		adapter.SetInput(dut.BootAddr, 0x80000000)

		Expect(adapter.Input(dut.BootAddr)).To(Equal(uint64(0x80000000)))
		Expect(adapter.Input(dut.DataErr)).To(BeZero())
	})

	It("should evaluate four sub-phases per cycle", func() {
		model.EXPECT().Eval().Times(4)

		adapter.Cycle()

		Expect(clkTrace).To(Equal([]uint64{0, 1, 1, 0}))
		Expect(adapter.Ticks()).To(Equal(uint64(4)))
		Expect(adapter.Cycles()).To(Equal(uint64(1)))
	})

	It("should advance simulated time by one period per cycle", func() {
		model.EXPECT().Eval().AnyTimes()

		adapter.Cycle()
		adapter.Cycle()

		Expect(float64(adapter.CurrentTime())).To(BeNumerically("~", 2e-9, 1e-15))
	})

	It("should fire the clock-edge hook for each sub-phase", func() {
		model.EXPECT().Eval().AnyTimes()
		rec := &edgeRecorder{}
		adapter.AcceptHook(rec)

		adapter.Cycle()

		Expect(rec.edges).To(HaveLen(4))
		Expect(rec.edges[1].Phase).To(Equal(dut.PhaseRise))
		Expect(rec.edges[1].Clk).To(Equal(uint64(1)))
		Expect(rec.edges[3].Tick).To(Equal(uint64(4)))
	})

	It("should hold reset low while pulsing the clock", func() {
		var rstDuringEval []uint64
		model.EXPECT().Eval().Do(func() {
			rstDuringEval = append(rstDuringEval, adapter.Input(dut.RstN))
		}).Times(11)

		adapter.SetInput(dut.RstN, 1)
		adapter.PulseReset(10)

		Expect(rstDuringEval[:10]).To(HaveEach(uint64(0)))
		Expect(rstDuringEval[10]).To(Equal(uint64(1)))
		Expect(adapter.Ticks()).To(Equal(uint64(10)))
	})

	It("should drive boot defaults", func() {
		model.EXPECT().Eval()

		adapter.Boot(0x80000000)

		Expect(adapter.Input(dut.RstN)).To(Equal(uint64(1)))
		Expect(adapter.Input(dut.FetchEnable)).To(Equal(uint64(1)))
		Expect(adapter.Input(dut.BootAddr)).To(Equal(uint64(0x80000000)))
		Expect(adapter.Input(dut.InstrRValid)).To(BeZero())
		Expect(adapter.Input(dut.DataRValid)).To(BeZero())
	})

	It("should present responses on the input side", func() {
		adapter.PresentInstruction(0x13)
		adapter.PresentData(0xCAFE, true)

		Expect(adapter.Input(dut.InstrRValid)).To(Equal(uint64(1)))
		Expect(adapter.Input(dut.InstrRData)).To(Equal(uint64(0x13)))
		Expect(adapter.Input(dut.DataErr)).To(Equal(uint64(1)))

		adapter.ClearResponses()

		Expect(adapter.Input(dut.InstrRValid)).To(BeZero())
		Expect(adapter.Input(dut.DataRValid)).To(BeZero())
		Expect(adapter.Input(dut.DataErr)).To(BeZero())
	})

	It("should sample requests from the outputs", func() {
		outputs := map[dut.Port]uint64{
			dut.InstrGnt:  1,
			dut.DataGnt:   1,
			dut.DataAddr:  0x80000010,
			dut.DataWData: 0xAABBCCDD,
			dut.DataBE:    0x13,
			dut.DataWE:    1,
			dut.PerfJump:  1,
			dut.RVFIValid: 1,
		}
		model.EXPECT().Output(gomock.Any()).DoAndReturn(func(p dut.Port) uint64 {
			return outputs[p]
		}).AnyTimes()

		req := adapter.Requests()

		Expect(req.InstrGnt).To(BeTrue())
		Expect(req.DataGnt).To(BeTrue())
		Expect(req.DataAddr).To(Equal(uint64(0x80000010)))
		Expect(req.DataWData).To(Equal(uint32(0xAABBCCDD)))
		Expect(req.DataBE).To(Equal(uint8(0x3)))
		Expect(req.DataWE).To(BeTrue())
		Expect(req.Jump).To(BeTrue())
		Expect(req.TakenBranch).To(BeFalse())
		Expect(req.Retired).To(BeTrue())
		Expect(req.Trap).To(BeFalse())
	})
})
