package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/diibridge/emu"
	"github.com/sarchlab/diibridge/insts"
)

var _ = Describe("Execution units", func() {
	var (
		regFile *emu.RegFile
		decoder *insts.Decoder
	)

	BeforeEach(func() {
		regFile = &emu.RegFile{}
		decoder = insts.NewDecoder()
	})

	Describe("ALU", func() {
		var alu *emu.ALU

		BeforeEach(func() {
			alu = emu.NewALU(regFile)
		})

		It("should subtract registers", func() {
			regFile.WriteReg(1, 3)
			regFile.WriteReg(2, 5)

			// SUB x3, x1, x2
			Expect(alu.Execute(decoder.Decode(0x402081B3), 0)).
				To(Equal(uint32(0xFFFFFFFE)))
		})

		It("should shift arithmetically", func() {
			regFile.WriteReg(1, 0x80000000)

			// SRAI x1, x1, 3
			Expect(alu.Execute(decoder.Decode(0x4030D093), 0)).
				To(Equal(uint32(0xF0000000)))
		})

		It("should add the upper immediate to the PC", func() {
			// AUIPC x1, 0x1
			Expect(alu.Execute(decoder.Decode(0x00001097), 0x80000000)).
				To(Equal(uint32(0x80001000)))
		})
	})

	Describe("BranchUnit", func() {
		var bu *emu.BranchUnit

		BeforeEach(func() {
			bu = emu.NewBranchUnit(regFile)
		})

		It("should take BNE when operands differ", func() {
			regFile.WriteReg(1, 1)

			// BNE x1, x2, -8
			taken, target := bu.Resolve(decoder.Decode(0xFE209CE3), 0x100)

			Expect(taken).To(BeTrue())
			Expect(target).To(Equal(uint32(0xF8)))
		})

		It("should not take BEQ when operands differ", func() {
			regFile.WriteReg(1, 1)

			// BEQ x1, x2, +8
			taken, _ := bu.Resolve(decoder.Decode(0x00208463), 0x100)

			Expect(taken).To(BeFalse())
		})

		It("should clear bit 0 of a JALR target", func() {
			regFile.WriteReg(1, 0x201)

			// JALR x0, 0(x1)
			taken, target := bu.Resolve(decoder.Decode(0x00008067), 0)

			Expect(taken).To(BeTrue())
			Expect(target).To(Equal(uint32(0x200)))
		})
	})

	Describe("LoadStoreUnit", func() {
		var lsu *emu.LoadStoreUnit

		BeforeEach(func() {
			lsu = emu.NewLoadStoreUnit(regFile)
		})

		It("should place a byte store on its lane", func() {
			regFile.WriteReg(1, 0x1000)
			regFile.WriteReg(2, 0xAB)

			// SB x2, 3(x1)
			access, ok := lsu.Request(decoder.Decode(0x002081A3))

			Expect(ok).To(BeTrue())
			Expect(access.Addr).To(Equal(uint32(0x1000)))
			Expect(access.BE).To(Equal(uint8(0b1000)))
			Expect(access.WData).To(Equal(uint32(0xAB000000)))
			Expect(access.Write).To(BeTrue())
		})

		It("should sign-extend a halfword load from the upper lane", func() {
			regFile.WriteReg(1, 0x1000)

			// LH x3, 2(x1)
			inst := decoder.Decode(0x00209183)
			access, ok := lsu.Request(inst)

			Expect(ok).To(BeTrue())
			Expect(access.BE).To(Equal(uint8(0b1100)))
			Expect(lsu.Extract(inst, access, 0x8001FFFF)).
				To(Equal(uint32(0xFFFF8001)))
		})

		It("should reject a misaligned word access", func() {
			regFile.WriteReg(1, 0x1002)

			// LW x3, 0(x1)
			_, ok := lsu.Request(decoder.Decode(0x0000A183))

			Expect(ok).To(BeFalse())
		})
	})
})
