package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/diibridge/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("Integer computation", func() {
		// ADDI x1, x0, 10 -> 0x00A00093
		It("should decode ADDI x1, x0, 10", func() {
			inst := decoder.Decode(0x00A00093)

			Expect(inst.Op).To(Equal(insts.OpADDI))
			Expect(inst.Format).To(Equal(insts.FormatI))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(0)))
			Expect(inst.Imm).To(Equal(int32(10)))
			Expect(inst.WritesRd()).To(BeTrue())
		})

		// SRAI x1, x1, 3 -> 0x4030D093
		It("should decode SRAI and keep only the shift amount", func() {
			inst := decoder.Decode(0x4030D093)

			Expect(inst.Op).To(Equal(insts.OpSRAI))
			Expect(inst.Imm).To(Equal(int32(3)))
		})

		// SUB x3, x1, x2 -> 0x402081B3
		It("should decode SUB x3, x1, x2", func() {
			inst := decoder.Decode(0x402081B3)

			Expect(inst.Op).To(Equal(insts.OpSUB))
			Expect(inst.Format).To(Equal(insts.FormatR))
			Expect(inst.Rd).To(Equal(uint8(3)))
			Expect(inst.Rs1).To(Equal(uint8(1)))
			Expect(inst.Rs2).To(Equal(uint8(2)))
		})

		// LUI x5, 0x12345 -> 0x123452B7
		It("should decode LUI with the immediate in the upper bits", func() {
			inst := decoder.Decode(0x123452B7)

			Expect(inst.Op).To(Equal(insts.OpLUI))
			Expect(inst.Format).To(Equal(insts.FormatU))
			Expect(inst.Rd).To(Equal(uint8(5)))
			Expect(inst.Imm).To(Equal(int32(0x12345000)))
		})

		// AUIPC x1, 0x80000 -> 0x80000097
		It("should keep the AUIPC immediate signed", func() {
			inst := decoder.Decode(0x80000097)

			Expect(inst.Op).To(Equal(insts.OpAUIPC))
			Expect(inst.Imm).To(BeNumerically("<", 0))
		})
	})

	Describe("Control flow", func() {
		// JAL x1, +8 -> 0x008000EF
		It("should decode JAL x1, +8", func() {
			inst := decoder.Decode(0x008000EF)

			Expect(inst.Op).To(Equal(insts.OpJAL))
			Expect(inst.Format).To(Equal(insts.FormatJ))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int32(8)))
			Expect(inst.IsJump()).To(BeTrue())
		})

		// JAL x0, -4 -> 0xFFDFF06F
		It("should decode a backward JAL", func() {
			inst := decoder.Decode(0xFFDFF06F)

			Expect(inst.Op).To(Equal(insts.OpJAL))
			Expect(inst.Rd).To(Equal(uint8(0)))
			Expect(inst.Imm).To(Equal(int32(-4)))
		})

		// BEQ x1, x2, +8 -> 0x00208463
		It("should decode BEQ x1, x2, +8", func() {
			inst := decoder.Decode(0x00208463)

			Expect(inst.Op).To(Equal(insts.OpBEQ))
			Expect(inst.Format).To(Equal(insts.FormatB))
			Expect(inst.Rs1).To(Equal(uint8(1)))
			Expect(inst.Rs2).To(Equal(uint8(2)))
			Expect(inst.Imm).To(Equal(int32(8)))
			Expect(inst.IsBranch()).To(BeTrue())
			Expect(inst.WritesRd()).To(BeFalse())
		})

		// BNE x1, x2, -8 -> 0xFE209CE3
		It("should decode BNE with a negative offset", func() {
			inst := decoder.Decode(0xFE209CE3)

			Expect(inst.Op).To(Equal(insts.OpBNE))
			Expect(inst.Imm).To(Equal(int32(-8)))
		})
	})

	Describe("Loads and stores", func() {
		// SW x2, 16(x1) -> 0x0020A823
		It("should decode SW x2, 16(x1)", func() {
			inst := decoder.Decode(0x0020A823)

			Expect(inst.Op).To(Equal(insts.OpSW))
			Expect(inst.Format).To(Equal(insts.FormatS))
			Expect(inst.Rs1).To(Equal(uint8(1)))
			Expect(inst.Rs2).To(Equal(uint8(2)))
			Expect(inst.Imm).To(Equal(int32(16)))
			Expect(inst.IsStore()).To(BeTrue())
			Expect(inst.AccessSize()).To(Equal(4))
		})

		// LW x3, -4(x1) -> 0xFFC0A183
		It("should decode LW x3, -4(x1)", func() {
			inst := decoder.Decode(0xFFC0A183)

			Expect(inst.Op).To(Equal(insts.OpLW))
			Expect(inst.Rd).To(Equal(uint8(3)))
			Expect(inst.Rs1).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int32(-4)))
			Expect(inst.IsLoad()).To(BeTrue())
		})
	})

	It("should decode FENCE as a no-op", func() {
		inst := decoder.Decode(0x0FF0000F)

		Expect(inst.Op).To(Equal(insts.OpFENCE))
		Expect(inst.WritesRd()).To(BeFalse())
	})

	DescribeTable("unsupported encodings",
		func(word uint32) {
			inst := decoder.Decode(word)

			Expect(inst.Op).To(Equal(insts.OpUnknown))
			Expect(inst.Format).To(Equal(insts.FormatUnknown))
		},
		Entry("all zeros", uint32(0x00000000)),
		Entry("all ones", uint32(0xFFFFFFFF)),
		Entry("compressed nop", uint32(0x00000001)),
		Entry("ecall", uint32(0x00000073)),
		Entry("store with funct3 3", uint32(0x0020B823)),
		Entry("jalr with funct3 1", uint32(0x000090E7)),
	)
})
